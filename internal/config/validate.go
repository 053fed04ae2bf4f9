package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Validate checks c against the embedded CUE schema, then checks what the
// schema cannot express: table shapes and that level_table resolves.
func (c *Config) Validate() error {
	if err := c.validateSchema(); err != nil {
		return err
	}

	if _, err := c.EngineTable(); err != nil {
		return err
	}

	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("remote.url: invalid url %q", c.Remote.URL)
		}
	}
	return nil
}

func (c *Config) validateSchema() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(c.schemaView())
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return schemaError(err)
	}
	return nil
}

// schemaView is the config as the schema sees it: snake_case keys, no nil
// collections, durations as nanoseconds.
func (c *Config) schemaView() map[string]any {
	tables := make(map[string]any, len(c.Tables))
	for name, thresholds := range c.Tables {
		list := make([]any, len(thresholds))
		for i, t := range thresholds {
			list[i] = t
		}
		tables[name] = list
	}
	sources := make([]any, len(c.RepeatableSources))
	for i, s := range c.RepeatableSources {
		sources[i] = s
	}

	return map[string]any{
		"user_id":            c.UserID,
		"cache_path":         c.CachePath,
		"daily_ceiling":      c.DailyCeiling,
		"retention_days":     c.RetentionDays,
		"level_table":        c.LevelTable,
		"tables":             tables,
		"repeatable_sources": sources,
		"remote": map[string]any{
			"url":          c.Remote.URL,
			"timeout":      int64(c.Remote.Timeout),
			"token_secret": c.Remote.TokenSecret,
		},
		"server": map[string]any{
			"addr": c.Server.Addr,
			"dsn":  c.Server.DSN,
		},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
		},
	}
}

// ValidationError lists every schema violation.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	return fmt.Sprintf("%s (and %d more)", e.Problems[0], len(e.Problems)-1)
}

// IsValidationError returns true if the error is a ValidationError.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func schemaError(err error) error {
	var problems []string
	for _, e := range cueerrors.Errors(err) {
		problems = append(problems, e.Error())
	}
	if len(problems) == 0 {
		problems = []string{err.Error()}
	}
	return &ValidationError{Problems: problems}
}
