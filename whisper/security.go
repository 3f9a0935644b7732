package whisper

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// reservedFlags are set by the transcriber itself and may not be overridden.
var reservedFlags = []string{"--output_dir", "--output_format", "--model", "--task", "--language"}

// SplitArgs splits an extra-argument string without invoking a shell.
func SplitArgs(raw string) ([]string, error) {
	args, err := shlex.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid argument syntax: %w", err)
	}
	return args, nil
}

// ValidateArgs rejects shell metacharacters and flags the transcriber owns.
func ValidateArgs(args []string) error {
	for _, arg := range args {
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
		for _, flag := range reservedFlags {
			if arg == flag || strings.HasPrefix(arg, flag+"=") {
				return fmt.Errorf("argument %s cannot be overridden", flag)
			}
		}
	}
	return nil
}
