package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/reveriehq/reverie/pkg/workflow"
)

// thinkingPattern matches reasoning blocks some models emit before the
// visible reply.
var thinkingPattern = regexp.MustCompile(`(?s)<think(?:ing)?>(.*?)</think(?:ing)?>\s*`)

type parseOptions struct {
	// StripPatterns are regexes removed from the visible response after
	// thinking extraction.
	StripPatterns []string `mapstructure:"strip_patterns"`
}

// parse post-processes the raw model output into the caller-visible reply:
// thinking blocks are split off, configured patterns are stripped, and
// structured content (summaries, next-turn suggestions) is extracted via the
// parse_content helper when one is registered.
type parse struct {
	deps  Deps
	strip []*regexp.Regexp
}

func newParse(deps Deps) workflow.Builder {
	return func(cfg workflow.NodeConfig) (workflow.Node, error) {
		var opts parseOptions
		if err := mapstructure.Decode(cfg.InitParams, &opts); err != nil {
			return nil, fmt.Errorf("parse node %s: bad init params: %w", cfg.ID, err)
		}
		strip := make([]*regexp.Regexp, 0, len(opts.StripPatterns))
		for _, p := range opts.StripPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("parse node %s: bad strip pattern %q: %w", cfg.ID, p, err)
			}
			strip = append(strip, re)
		}
		return &parse{deps: deps, strip: strip}, nil
	}
}

func (n *parse) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	full, err := stringField(input, FieldFullResponse)
	if err != nil {
		return nil, err
	}

	var thinking string
	visible := thinkingPattern.ReplaceAllStringFunc(full, func(block string) string {
		m := thinkingPattern.FindStringSubmatch(block)
		if thinking != "" {
			thinking += "\n"
		}
		thinking += strings.TrimSpace(m[1])
		return ""
	})
	for _, re := range n.strip {
		visible = re.ReplaceAllString(visible, "")
	}
	visible = strings.TrimSpace(visible)

	parsed := map[string]any{}
	if n.deps.Helpers.Has(HelperParseContent) {
		out, err := n.deps.Helpers.Call(ctx, HelperParseContent, map[string]any{
			FieldFullResponse: full,
			FieldAssistant:    visible,
		})
		if err != nil {
			return nil, fmt.Errorf("parse_content helper: %w", err)
		}
		m, ok := out.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parse_content helper: expected map[string]any, got %T", out)
		}
		parsed = m
	}

	return map[string]any{
		FieldAssistant:     visible,
		FieldThinking:      thinking,
		FieldParsedContent: parsed,
		FieldFullResponse:  full,
	}, nil
}
