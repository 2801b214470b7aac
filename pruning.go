package conduit

import "fmt"

// defaultKeepLastAssistantTurns is the number of most recent assistant turns left
// untouched by pruning; defaults to 3 per §4.7.
const defaultKeepLastAssistantTurns = 3

// hardClearThreshold is the total character count of eligible old
// tool-result text above which every eligible result is replaced with the
// cleared-context placeholder instead of being individually trimmed.
const hardClearThreshold = 50_000

// softTrimMaxChars is the per-message character length above which an
// eligible tool result is head+tail trimmed rather than left intact.
const softTrimMaxChars = 4000

const softTrimHeadChars = 1500
const softTrimTailChars = 1500

const clearedPlaceholder = "[Tool result cleared — old context]"

// Pruner trims old tool-result text from the in-memory message array to
// bound its size. It never touches persisted session state.
type Pruner struct {
	keepLastAssistantTurns int
}

// PrunerOption configures a Pruner.
type PrunerOption func(*Pruner)

// PrunerKeepLastAssistantTurns overrides the default of 3.
func PrunerKeepLastAssistantTurns(n int) PrunerOption {
	return func(p *Pruner) { p.keepLastAssistantTurns = n }
}

// NewPruner creates a Pruner with the given options.
func NewPruner(opts ...PrunerOption) *Pruner {
	p := &Pruner{keepLastAssistantTurns: defaultKeepLastAssistantTurns}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Prune mutates messages in place, applying the two-tier policy to
// ToolResultMessageV entries older than the last 2*keepLastAssistantTurns
// positions. Idempotent: a second call over already-pruned messages is a
// no-op, since cleared/trimmed text no longer exceeds either threshold and
// the eligible window is computed the same way each time.
func (p *Pruner) Prune(messages []RuntimeMessage) {
	boundary := len(messages) - 2*p.keepLastAssistantTurns
	if boundary <= 0 {
		return
	}
	eligible := messages[:boundary]

	var totalOldChars int
	for _, m := range eligible {
		if tr, ok := m.(ToolResultMessageV); ok {
			totalOldChars += len(tr.Text())
		}
	}

	hardClear := totalOldChars > hardClearThreshold
	for i, m := range eligible {
		tr, ok := m.(ToolResultMessageV)
		if !ok {
			continue
		}
		text := tr.Text()
		if hardClear {
			if text == clearedPlaceholder {
				continue
			}
			eligible[i] = withText(tr, clearedPlaceholder)
			continue
		}
		if len(text) > softTrimMaxChars {
			eligible[i] = withText(tr, softTrim(text))
		}
	}
}

// softTrim replaces the middle of text with a marker naming the trimmed
// character count, keeping head and tail verbatim.
func softTrim(text string) string {
	if len(text) <= softTrimHeadChars+softTrimTailChars {
		return text
	}
	trimmed := len(text) - softTrimHeadChars - softTrimTailChars
	head := text[:softTrimHeadChars]
	tail := text[len(text)-softTrimTailChars:]
	return head + fmt.Sprintf("\n\n... [%d chars trimmed] ...\n\n", trimmed) + tail
}

// withText returns a copy of tr with its content replaced by a single text
// block, preserving ToolCallID/ToolName/IsError.
func withText(tr ToolResultMessageV, text string) ToolResultMessageV {
	tr.Content = []TextBlock{{Text: text}}
	return tr
}
