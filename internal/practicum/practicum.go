package practicum

// Package-level constants describing the homework review API.
//
// The API exposes a single endpoint returning homework records updated since
// the from_date cursor, together with the server's notion of "now".

const DefaultEndpoint = "https://practicum.yandex.ru/api/user_api/homework_statuses/"

// Review statuses form a closed set; anything else is an error, not a skip.
const (
	StatusApproved  = "approved"
	StatusReviewing = "reviewing"
	StatusRejected  = "rejected"
)

// verdicts maps a review status to the operator-facing sentence.
// The texts are fixed; they are part of the bot's contract with its user.
var verdicts = map[string]string{
	StatusApproved:  "Работа проверена: ревьюеру всё понравилось. Ура!",
	StatusReviewing: "Работа взята на проверку ревьюером.",
	StatusRejected:  "Работа проверена: у ревьюера есть замечания.",
}

// Verdict returns the verdict sentence for a known status.
func Verdict(status string) (string, bool) {
	v, ok := verdicts[status]
	return v, ok
}
