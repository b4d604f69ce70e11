package practicum

import "fmt"

// ValidateResponse checks the decoded API body against the documented shape
// and returns the homework sequence unchanged (possibly empty).
//
// In strict mode the current_date key must also be present; this matches the
// reference behavior of the service's own client.
func ValidateResponse(body any, strict bool) ([]any, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, &ShapeError{Reason: fmt.Sprintf("expected an object, got %T", body)}
	}
	hw, ok := m["homeworks"]
	if !ok {
		return nil, &ShapeError{Reason: "missing key 'homeworks'"}
	}
	if strict {
		if _, ok := m["current_date"]; !ok {
			return nil, &ShapeError{Reason: "missing key 'current_date'"}
		}
	}
	seq, ok := hw.([]any)
	if !ok {
		return nil, &ShapeError{Reason: fmt.Sprintf("'homeworks' is not a list, got %T", hw)}
	}
	return seq, nil
}

// CurrentDate extracts the server-reported current_date when present.
// JSON numbers decode as float64; anything non-numeric reads as absent.
func CurrentDate(body any) (int64, bool) {
	m, ok := body.(map[string]any)
	if !ok {
		return 0, false
	}
	v, ok := m["current_date"].(float64)
	if !ok {
		return 0, false
	}
	return int64(v), true
}
