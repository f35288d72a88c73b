// Package prompt assembles the model prompt under a token budget.
// Segments are dropped by priority when the budget is tight: the
// system instructions and the query always survive, history is
// trimmed oldest-first, and retrieved context is cut last-ranked
// first.
package prompt

import (
	"fmt"
	"strings"

	"github.com/docsage/docsage/pkg/config"
	"github.com/docsage/docsage/pkg/document"
	"github.com/docsage/docsage/pkg/llms"
	"github.com/docsage/docsage/pkg/search"
)

// BudgetError reports that the instructions and query alone exceed
// the model budget. The prompt is still sent, cut down to those two
// segments; callers surface the warning to the client.
type BudgetError struct {
	Required int
	Budget   int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("prompt budget too small: need %d tokens for instructions and query, budget is %d", e.Required, e.Budget)
}

// Input is the material for one prompt.
type Input struct {
	System string
	Query  string
	// History is prior turns, oldest first.
	History []llms.Message
	// Context is the reranked document list, most relevant first.
	Context []document.Document
	Quality search.Quality
}

// Result is an assembled prompt.
type Result struct {
	Messages []llms.Message
	// Included lists the context documents that survived truncation,
	// in prompt order.
	Included []document.Document
	// Minimal reports that everything but instructions and query was
	// dropped even though more was offered.
	Minimal bool
	// Warning is set when instructions and query alone blow the
	// budget; the prompt then carries exactly those two segments.
	Warning *BudgetError
	Tokens  int
	Budget  int
}

// Assembler builds prompts for a configured budget policy.
type Assembler struct {
	cfg config.PromptConfig
}

func NewAssembler(cfg config.PromptConfig) *Assembler {
	return &Assembler{cfg: cfg}
}

// EstimateTokens approximates the token count of text. The estimate is
// deliberately cheap and slightly pessimistic.
func EstimateTokens(text string) int {
	return len(text)/4 + 1
}

// BudgetFor returns the token budget for a model name. Models matching
// a constrained substring get the small budget.
func (a *Assembler) BudgetFor(model string) int {
	lower := strings.ToLower(model)
	for _, sub := range a.cfg.ConstrainedModels {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return a.cfg.ConstrainedBudget
		}
	}
	return a.cfg.DefaultBudget
}

// Assemble builds the prompt for model from in, truncating to the
// budget.
func (a *Assembler) Assemble(model string, in Input) *Result {
	budget := a.BudgetFor(model)

	system := annotateSystem(in.System, in.Quality)
	used := EstimateTokens(system) + EstimateTokens(in.Query)
	if used > budget {
		// Over budget before anything optional is added: send the
		// instructions and query anyway and flag it.
		return &Result{
			Messages: []llms.Message{
				{Role: llms.RoleSystem, Content: system},
				{Role: llms.RoleUser, Content: in.Query},
			},
			Minimal: len(in.History) > 0 || len(in.Context) > 0,
			Warning: &BudgetError{Required: used, Budget: budget},
			Tokens:  used,
			Budget:  budget,
		}
	}

	// History before context: recent conversation outranks retrieval.
	history, used := fitHistory(in.History, budget, used)
	included, contextBlock, used := fitContext(in.Context, budget, used)

	if contextBlock != "" {
		system += "\n\n" + contextBlock
	}

	messages := make([]llms.Message, 0, len(history)+2)
	messages = append(messages, llms.Message{Role: llms.RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, llms.Message{Role: llms.RoleUser, Content: in.Query})

	minimal := len(history) == 0 && len(included) == 0 &&
		(len(in.History) > 0 || len(in.Context) > 0)

	return &Result{
		Messages: messages,
		Included: included,
		Minimal:  minimal,
		Tokens:   used,
		Budget:   budget,
	}
}

// fitHistory keeps the newest turns that fit, returned oldest-first.
func fitHistory(history []llms.Message, budget, used int) ([]llms.Message, int) {
	var kept []llms.Message
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i].Content)
		if used+cost > budget {
			break
		}
		used += cost
		kept = append(kept, history[i])
	}

	// Reverse back to chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept, used
}

// fitContext renders the documents that fit, keeping rank order and
// renumbering so the visible [CTX n] labels stay contiguous.
func fitContext(docs []document.Document, budget, used int) ([]document.Document, string, int) {
	var included []document.Document
	var blocks []string
	for _, doc := range docs {
		block := renderContext(len(included)+1, doc)
		cost := EstimateTokens(block)
		if used+cost > budget {
			continue
		}
		used += cost
		included = append(included, doc)
		blocks = append(blocks, block)
	}

	if len(blocks) == 0 {
		return nil, "", used
	}
	return included, "Documentation context:\n\n" + strings.Join(blocks, "\n\n"), used
}

func renderContext(n int, doc document.Document) string {
	header := fmt.Sprintf("[CTX %d] %s", n, doc.Title())
	if url := doc.URL(); url != "" {
		header += " (" + url + ")"
	}
	return header + "\n" + doc.Text
}

// annotateSystem appends the retrieval quality note and, when the
// evidence is weak, a hedging instruction.
func annotateSystem(system string, quality search.Quality) string {
	annotated := system + "\n\n" + quality.Annotation()
	if quality.NeedsHedging() {
		annotated += " If the context does not clearly support an answer, say so rather than guessing."
	}
	return annotated
}
