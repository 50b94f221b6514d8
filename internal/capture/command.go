package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DisplayPlaceholder in CommandBackend args is replaced with the display index.
const DisplayPlaceholder = "{display}"

// commandWaitDelay bounds how long output pipes may stay open after the command is killed.
const commandWaitDelay = time.Second

// CommandBackend captures by running an external screenshot tool that writes the
// image to stdout, for example `grim -` or `import -window root png:-`.
// A non-zero exit status becomes the failure code.
type CommandBackend struct {
	Path   string
	Args   []string
	Format string
}

func (b CommandBackend) Capture(ctx context.Context, display int) (Buffer, error) {
	if strings.TrimSpace(b.Path) == "" {
		return Buffer{}, &CodeError{Code: ErrorInternal, Err: errors.New("capture command is not configured")}
	}
	args := make([]string, len(b.Args))
	for i, arg := range b.Args {
		args[i] = strings.ReplaceAll(arg, DisplayPlaceholder, strconv.Itoa(display))
	}

	command := exec.CommandContext(ctx, b.Path, args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.WaitDelay = commandWaitDelay

	if err := command.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Buffer{}, &CodeError{Code: CodeTimedOut, Err: ctxErr}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			return Buffer{}, &CodeError{
				Code: exitErr.ExitCode(),
				Err:  fmt.Errorf("%s: %s", b.Path, strings.TrimSpace(stderr.String())),
			}
		}
		return Buffer{}, &CodeError{Code: ErrorInternal, Err: fmt.Errorf("run %s: %w", b.Path, err)}
	}
	return Buffer{Data: stdout.Bytes(), Format: b.Format}, nil
}
