package botkit

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrNoArguments = errors.New("command arguments are empty")

// ParseJSON decodes the command arguments, e.g. /addsource {"name": "..", "url": ".."}.
func ParseJSON[T any](src string) (T, error) {
	var args T

	src = strings.TrimSpace(src)
	if src == "" {
		return args, ErrNoArguments
	}
	if err := json.Unmarshal([]byte(src), &args); err != nil {
		return args, err
	}
	return args, nil
}
