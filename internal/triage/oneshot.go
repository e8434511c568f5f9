package triage

import (
	"context"
	"strconv"

	"photo-triage/internal/domain"
	"photo-triage/internal/worker"
	"photo-triage/internal/workerproto"
)

// dispatchOneShot runs a fresh analyzer per file and parses the last line of
// its output. A file whose analyzer cannot start or answer is rejected and the
// run continues.
func (p *Pipeline) dispatchOneShot(
	ctx context.Context,
	req Request,
	candidates []Candidate,
	applier *Applier,
	record func(domain.ProgressEvent),
) error {
	emitState(req.OnState, domain.RunStatusDispatching)
	threshold := strconv.FormatFloat(req.Threshold, 'f', -1, 64)

	for cursor, candidate := range candidates {
		if ctx.Err() != nil {
			return runError(KindCancelled, "run cancelled", ctx.Err())
		}

		args := append(append([]string{}, req.AnalyzerArgs...), candidate.Path, threshold)
		result, err := p.runner.Run(ctx, req.AnalyzerPath, args...)
		if ctx.Err() != nil {
			return runError(KindCancelled, "run cancelled", ctx.Err())
		}

		var resp workerproto.Response
		switch {
		case err != nil && worker.IsStartFailure(err):
			p.logger.Error("cannot start analyzer", "file", candidate.Path, "error", err)
			resp.Reason = "cannot start the analysis engine"
		default:
			parsed, parseErr := workerproto.ParseResponse(workerproto.LastLine(result.Stdout))
			if parseErr != nil {
				p.logger.Warn("analyzer output could not be parsed",
					"file", candidate.Path,
					"exit_code", result.ExitCode,
					"stderr", result.Stderr,
					"error", parseErr,
				)
				resp.Reason = "the analysis engine output could not be parsed or it crashed"
			} else {
				resp = parsed
			}
		}

		record(applier.Apply(cursor+1, candidate, resp))
	}

	emitState(req.OnState, domain.RunStatusDraining)
	return nil
}
