package queue

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/okian/shiftmetrics/internal/domain/model"
)

// DecodeInput parses one JSON event document as delivered by edge devices.
// Field validation is left to admission.
func DecodeInput(raw []byte) (model.EventInput, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return model.EventInput{}, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	var in model.EventInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return model.EventInput{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return in, nil
}
