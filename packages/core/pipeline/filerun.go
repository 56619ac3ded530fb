package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/treq/packages/core/env"
	"github.com/abdul-hamid-achik/treq/packages/core/parser"
	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
	"github.com/abdul-hamid-achik/treq/packages/plugin"
)

// FileRunOptions configure a whole-file run.
type FileRunOptions struct {
	// MaxRetries applies to requests without their own @maxRetries.
	MaxRetries int
	// Rate throttles request starts per second; zero means unthrottled.
	Rate float64
	// Bail stops the run at the first failed request.
	Bail bool
	// Variables are merged under the file's own variable declarations.
	Variables map[string]any
}

// FileResult is the outcome of one request in a file run.
type FileResult struct {
	Request    *parser.Request
	RunID      string
	FlowID     string
	Response   *treqhttp.Response
	Err        error
	Duration   time.Duration
	Skipped    bool
	SkipReason string
}

// RunFile executes a parsed file's requests in order. All requests share
// one flow scope; each gets its own run scope.
func (p *Pipeline) RunFile(ctx context.Context, file *parser.File, opts *FileRunOptions) ([]*FileResult, error) {
	if opts == nil {
		opts = &FileRunOptions{}
	}

	fileVars := make(map[string]any, len(file.Variables))
	for k, v := range file.Variables {
		fileVars[k] = v
	}
	variables := env.MergeVariables(opts.Variables, fileVars)

	var limiter *rate.Limiter
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	flowID := uuid.NewString()
	basePath := filepath.Dir(file.Path)

	var results []*FileResult
	for _, req := range file.Requests {
		if req.Skip != "" {
			results = append(results, &FileResult{
				Request:    req,
				FlowID:     flowID,
				Skipped:    true,
				SkipReason: req.Skip,
			})
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return results, err
			}
		}

		maxRetries := opts.MaxRetries
		if req.MaxRetries > 0 {
			maxRetries = req.MaxRetries
		}

		hctx := p.manager.CreateHookContext(&plugin.ContextOverrides{
			ExecutionContext: plugin.ExecutionContext{
				FlowID:      flowID,
				RequestName: req.Name,
			},
			Variables:  variables,
			MaxRetries: maxRetries,
		})

		start := time.Now()
		resp, err := p.Run(ctx, req, variables, basePath, hctx)
		results = append(results, &FileResult{
			Request:  req,
			RunID:    hctx.RunID,
			FlowID:   flowID,
			Response: resp,
			Err:      err,
			Duration: time.Since(start),
		})

		if err != nil && opts.Bail {
			break
		}
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}

	return results, nil
}
