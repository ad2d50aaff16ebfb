package devserver

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-client/internal/model"
)

// Student is the single seeded credential for the devserver.
type Student struct {
	NISN         string
	PasswordHash []byte
}

// DefaultStudent returns the seeded student (nisn "12345", password
// "password123").
func DefaultStudent() Student {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	return Student{NISN: "12345", PasswordHash: hash}
}

// Fixture bundles the seeded exam with the correct choice answers the
// grader checks against.
type Fixture struct {
	Exam    *model.Exam
	Correct map[uuid.UUID][]string // choice questions only
}

// DefaultFixture seeds a three-section exam exercising every question
// kind: section A fully required, B and C selectively answerable.
func DefaultFixture() *Fixture {
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
	}

	exam := &model.Exam{
		ID:                      uuid.New(),
		Title:                   "Ujian Simulasi ExStem",
		TimeLimitMinutes:        60,
		AllowSelectiveAnswering: true,
		SectionBRequiredCount:   2,
		SectionCRequiredCount:   1,
		Sections: []model.Section{
			{
				Name:        model.SectionA,
				Description: "Pilihan ganda (wajib)",
				Questions: []model.Question{
					{
						ID: ids[0], Section: model.SectionA, Type: model.TypeMultipleChoice,
						Text:    "Ibu kota Indonesia adalah?",
						Options: []string{"Jakarta", "Bandung", "Surabaya", "Medan"},
						Points:  2,
					},
					{
						ID: ids[1], Section: model.SectionA, Type: model.TypeTrueFalse,
						Text:    "Air mendidih pada 100 derajat Celsius di permukaan laut.",
						Options: []string{"True", "False"},
						Points:  1,
					},
					{
						ID: ids[2], Section: model.SectionA, Type: model.TypeMatching,
						Text: "Jodohkan negara dengan ibu kotanya.",
						MatchingPairs: []model.MatchPair{
							{Left: "Jepang", Right: "Tokyo"},
							{Left: "Prancis", Right: "Paris"},
						},
						Points: 2,
					},
				},
			},
			{
				Name:        model.SectionB,
				Description: "Jawaban singkat (pilih 2 dari 4)",
				Questions: []model.Question{
					{ID: ids[3], Section: model.SectionB, Text: "Sebutkan rumus kimia air.", Points: 3},
					{ID: ids[4], Section: model.SectionB, Text: "Planet terbesar di tata surya adalah ____.", Points: 3},
					{
						ID: ids[5], Section: model.SectionB, Type: model.TypeOrdering,
						Text:          "Urutkan fase metamorfosis kupu-kupu.",
						OrderingItems: []string{"Telur", "Larva", "Pupa", "Imago"},
						Points:        3,
					},
					{
						ID: ids[6], Section: model.SectionB, Type: model.TypeDragDrop,
						Text:       "Tempatkan hewan ke habitatnya.",
						DropZones:  []string{"Air", "Darat"},
						Draggables: []string{"Ikan", "Kucing"},
						Points:     3,
					},
				},
			},
			{
				Name:        model.SectionC,
				Description: "Esai (pilih 1 dari 2)",
				Questions: []model.Question{
					{
						ID: ids[7], Section: model.SectionC, Type: model.TypeEssay,
						Text:   "Jelaskan dampak perubahan iklim terhadap ketahanan pangan nasional dan langkah mitigasi yang dapat diambil pemerintah daerah.",
						Points: 10,
					},
					{
						ID: ids[8], Section: model.SectionC, Type: model.TypeEssay,
						Text:   "Uraikan peran teknologi informasi dalam pemerataan akses pendidikan di daerah tertinggal, terdepan, dan terluar.",
						Points: 10,
					},
				},
			},
		},
	}

	return &Fixture{
		Exam: exam,
		Correct: map[uuid.UUID][]string{
			ids[0]: {"Jakarta"},
			ids[1]: {"True"},
		},
	}
}
