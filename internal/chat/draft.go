package chat

import "sync"

// Draft is the pending outbound input buffer
type Draft struct {
	mu   sync.Mutex
	text string
}

// Set replaces the draft's content
func (d *Draft) Set(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

// Append adds text at the end of the draft, e.g. an inserted emoji
func (d *Draft) Append(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text += text
}

// String returns the draft's content
func (d *Draft) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Clear empties the draft
func (d *Draft) Clear() {
	d.Set("")
}

// ClearIf empties the draft only if it still holds text, so input typed
// after a send started survives its completion
func (d *Draft) ClearIf(text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.text != text {
		return false
	}
	d.text = ""
	return true
}
