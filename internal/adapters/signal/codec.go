package signal

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/dkeye/Classroom/internal/domain"
)

var ErrMalformed = errors.New("malformed signal")

// decodeInbound reads {action, target, data}. action must be a non-empty
// string, target a string or null; data is kept raw and never inspected.
func decodeInbound(frame []byte) (domain.Signal, error) {
	if !gjson.ValidBytes(frame) {
		return domain.Signal{}, errors.Wrap(ErrMalformed, "invalid json")
	}
	env := gjson.ParseBytes(frame)
	if !env.IsObject() {
		return domain.Signal{}, errors.Wrap(ErrMalformed, "not an object")
	}

	action := env.Get("action")
	if action.Type != gjson.String || action.Str == "" {
		return domain.Signal{}, errors.Wrap(ErrMalformed, "action must be a non-empty string")
	}
	sig := domain.Signal{Action: domain.Action(action.Str)}

	switch target := env.Get("target"); target.Type {
	case gjson.Null:
	case gjson.String:
		sig.Target = domain.UserID(target.Str)
	default:
		return domain.Signal{}, errors.Wrap(ErrMalformed, "target must be a string")
	}

	if data := env.Get("data"); data.Exists() {
		sig.Data = json.RawMessage(data.Raw)
	}
	return sig, nil
}
