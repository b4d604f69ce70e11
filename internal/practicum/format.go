package practicum

import "fmt"

// ParseStatus turns one homework record into the notification text.
//
// The record must carry a non-empty homework_name and a status from the
// documented set; anything else is an error so the operator hears about
// undocumented API changes instead of silently missing them.
func ParseStatus(record any) (string, error) {
	m, _ := record.(map[string]any)

	name := stringField(m, "homework_name")
	if name == "" {
		return "", &MissingFieldError{Field: "homework_name"}
	}
	status := stringField(m, "status")
	if status == "" {
		return "", &MissingFieldError{Field: "status"}
	}
	verdict, ok := Verdict(status)
	if !ok {
		return "", &UnknownStatusError{Status: status}
	}
	return fmt.Sprintf("Изменился статус проверки работы %q. %s", name, verdict), nil
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
