package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session ───────────────────────────────────────────────────────
	ErrExamLocked       ErrCode = "EXAM_LOCKED"
	ErrSessionNotFound  ErrCode = "SESSION_NOT_FOUND"
	ErrSessionCompleted ErrCode = "SESSION_COMPLETED"
	ErrQuestionNotFound ErrCode = "QUESTION_NOT_FOUND"
	ErrAnswerLocked     ErrCode = "ANSWER_LOCKED"
	ErrBelowMinimum     ErrCode = "SELECTION_BELOW_MINIMUM"
	ErrNotSelective     ErrCode = "SELECTION_NOT_ALLOWED"
	ErrNoAnswers        ErrCode = "NO_ANSWERS"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email/NISN atau kata sandi salah."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrExamLocked:
		return "Ujian ini sedang dikunci dan tidak dapat dikerjakan."
	case ErrSessionNotFound:
		return "Sesi ujian tidak ditemukan."
	case ErrSessionCompleted:
		return "Sesi ujian sudah diselesaikan."
	case ErrQuestionNotFound:
		return "Pertanyaan tidak ditemukan. Silakan muat ulang halaman."
	case ErrAnswerLocked:
		return "Jawaban sudah terkunci dan tidak dapat diubah."
	case ErrBelowMinimum:
		return "Jumlah soal terpilih tidak boleh kurang dari batas minimum."
	case ErrNotSelective:
		return "Ujian ini tidak mengizinkan pemilihan soal."
	case ErrNoAnswers:
		return "Belum ada jawaban yang tersimpan."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
