package filter

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	gocache "github.com/patrickmn/go-cache"

	"github.com/ppiankov/sourcerank/internal/model"
)

// Env is the environment custom predicate expressions are evaluated
// against, e.g. `Seeders > 20 && Codec == "hevc" && SizeGB < 30`.
type Env struct {
	ID           string
	Title        string
	Resolution   int // 0 unknown, 1 480p, 2 720p, 3 1080p, 4 2160p
	HDR          bool
	DolbyVision  bool
	Codec        string
	Audio        string
	Channels     string
	Atmos        bool
	Group        string
	ReleaseType  string
	Provider     string
	Tier         int
	Kind         string
	Cached       bool
	Seeders      int
	Leechers     int
	Availability float64
	SizeBytes    int64
	SizeGB       float64
	AgeHours     float64
	Health       int
	Risk         string
}

func newEnv(c *candidate) Env {
	tr := c.Traits()
	h := c.Health()
	return Env{
		ID:           c.src.ID,
		Title:        c.src.Title,
		Resolution:   int(tr.Resolution),
		HDR:          tr.HasHDR(),
		DolbyVision:  tr.DolbyVision,
		Codec:        tr.Codec,
		Audio:        tr.Audio,
		Channels:     tr.Channels,
		Atmos:        tr.Atmos,
		Group:        tr.Group,
		ReleaseType:  string(tr.Type),
		Provider:     c.src.Provider.ID,
		Tier:         int(c.src.Provider.Tier),
		Kind:         string(kindOf(c.src)),
		Cached:       c.src.Cached,
		Seeders:      c.src.Health.Seeders,
		Leechers:     c.src.Health.Leechers,
		Availability: c.src.Health.Availability,
		SizeBytes:    c.src.File.SizeBytes,
		SizeGB:       float64(c.src.File.SizeBytes) / 1e9,
		AgeHours:     c.src.Health.Age().Hours(),
		Health:       h.OverallScore,
		Risk:         string(h.Risk),
	}
}

// compilePredicates turns the predicate list into checks. Match functions
// take precedence over expressions.
func (s *System) compilePredicates(preds []model.Predicate) ([]check, error) {
	checks := make([]check, 0, len(preds))
	for i, p := range preds {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}

		if p.Match != nil {
			match := p.Match
			checks = append(checks, check{
				name: "predicate: " + name,
				cost: costPredicate,
				pass: func(c *candidate) bool { return match(c.src) },
			})
			continue
		}

		program, err := s.program(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalidPredicate, name, err)
		}
		checks = append(checks, check{
			name: "predicate: " + name,
			cost: costPredicate,
			pass: func(c *candidate) bool {
				out, err := expr.Run(program, newEnv(c))
				if err != nil {
					s.logger.Debug().Err(err).Str("source", c.src.ID).Str("predicate", name).Msg("Predicate evaluation failed")
					return false
				}
				ok, _ := out.(bool)
				return ok
			},
		})
	}
	return checks, nil
}

// program compiles src, reusing recently compiled programs.
func (s *System) program(src string) (*vm.Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty expression")
	}
	if p, ok := s.programs.Get(src); ok {
		return p.(*vm.Program), nil
	}

	program, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, err
	}
	s.programs.Set(src, program, gocache.DefaultExpiration)
	return program, nil
}

// ValidateExpr reports whether src compiles as a predicate.
func (s *System) ValidateExpr(src string) error {
	if _, err := s.program(src); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidPredicate, err)
	}
	return nil
}
