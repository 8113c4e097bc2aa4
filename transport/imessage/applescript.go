package imessage

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// sendTarget selects what the AppleScript sends: text or a POSIX file.
type sendTarget struct {
	value  string
	isFile bool
}

func textTarget(body string) sendTarget { return sendTarget{value: body} }
func fileTarget(path string) sendTarget { return sendTarget{value: path, isFile: true} }

// sendToHandle tries the configured service first, then iMessage, SMS and
// RCS, and returns the last error when every attempt fails.
func (t *Transport) sendToHandle(handle string, target sendTarget) error {
	var lastErr error
	for _, service := range serviceAttempts(t.cfg.Service) {
		_, err := t.run(sendScript(target), []string{handle, target.value, service})
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no service account available")
	}
	return fmt.Errorf("imessage: send to handle %q failed: %w", handle, lastErr)
}

func serviceAttempts(preferred string) []string {
	candidates := []string{normalizeServiceName(preferred), "iMessage", "SMS", "RCS"}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(candidates))
	for _, service := range candidates {
		if service == "" {
			continue
		}
		if _, ok := seen[service]; ok {
			continue
		}
		seen[service] = struct{}{}
		out = append(out, service)
	}
	return out
}

func sendScript(target sendTarget) []string {
	payload := `set payload to item 2 of argv`
	if target.isFile {
		payload = `set payload to POSIX file (item 2 of argv)`
	}
	return []string{
		`on run argv`,
		`set targetHandle to item 1 of argv`,
		payload,
		`set desiredService to item 3 of argv`,
		`tell application "Messages"`,
		`set targetAccount to first account whose service type is desiredService`,
		`set targetParticipant to participant targetHandle of targetAccount`,
		`send payload to targetParticipant`,
		`end tell`,
		`end run`,
	}
}

func runAppleScript(lines []string, args []string) (string, error) {
	cmdArgs := make([]string, 0, len(lines)*2+len(args))
	for _, line := range lines {
		cmdArgs = append(cmdArgs, "-e", line)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.Command("/usr/bin/osascript", cmdArgs...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(out.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

func normalizeServiceName(service string) string {
	switch strings.ToLower(strings.TrimSpace(service)) {
	case "imessage":
		return "iMessage"
	case "sms":
		return "SMS"
	case "rcs":
		return "RCS"
	default:
		return ""
	}
}
