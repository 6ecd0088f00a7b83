package convert

import (
	"context"
	"log/slog"
	"time"
)

// Options fixes the per-deployment behavior of a Pipeline. The several
// deployment variants (flat vs. timestamped naming, prefix or none, link
// lifetime) are configuration here, not branches in the orchestration.
type Options struct {
	Policy  NamingPolicy
	Prefix  string
	LinkTTL time.Duration
}

// Result is the terminal success state of one conversion.
type Result struct {
	ObjectName string
	Link       SignedLink
}

// Pipeline runs the conversion sequence for one request: validate, fetch,
// transcode, derive name, publish, issue link. Stages run strictly in order;
// the first failure aborts the remainder and surfaces as an *Error. Safe for
// concurrent use: all mutable state is request-local.
type Pipeline struct {
	opts       Options
	fetcher    Fetcher
	transcoder Transcoder
	store      Store
	logger     *slog.Logger
	now        func() time.Time
}

// NewPipeline wires a Pipeline from its collaborators. logger must be
// non-nil; now defaults to time.Now.
func NewPipeline(opts Options, fetcher Fetcher, transcoder Transcoder, store Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		opts:       opts,
		fetcher:    fetcher,
		transcoder: transcoder,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock replaces the pipeline clock. Used by tests to pin object names.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Convert runs the full pipeline for one source reference.
func (p *Pipeline) Convert(ctx context.Context, sourceRef string) (*Result, error) {
	if err := ValidateSourceReference(sourceRef); err != nil {
		p.logger.Warn("source reference rejected", "source", sourceRef, "error", err)
		return nil, err
	}
	log := p.logger.With("source", sourceRef)

	src, err := p.fetcher.Fetch(ctx, sourceRef)
	if err != nil {
		cerr := &Error{Kind: KindSourceFetch, Stage: "fetch", UpstreamStatus: upstreamStatus(err), Err: err}
		log.Error("source fetch failed", "upstream_status", cerr.UpstreamStatus, "error", err)
		return nil, cerr
	}
	log.Info("source fetched", "bytes", len(src))

	wb, err := p.transcoder.Decode(src)
	if err != nil {
		log.Error("source decode failed", "error", err)
		return nil, newError(KindUnreadableSource, "decode", err)
	}
	out, err := p.transcoder.Encode(wb)
	if err != nil {
		log.Error("workbook encode failed", "error", err)
		return nil, newError(KindEncode, "encode", err)
	}

	name := DeriveObjectName(SourceBaseName(sourceRef), p.opts.Policy, p.opts.Prefix, p.now())
	log = log.With("object_name", name)

	if err := p.store.Put(ctx, name, out); err != nil {
		log.Error("publish failed", "error", err)
		return nil, newError(KindPublish, "publish", err)
	}
	log.Info("output published", "bytes", len(out))

	link, err := p.store.SignedReadURL(ctx, name, p.opts.LinkTTL)
	if err != nil {
		// The object is already durable at this point. Logged apart from
		// publish failures so the orphaned object is discoverable by name.
		log.Error("object published but signed link issuance failed", "error", err)
		return nil, newError(KindLinkIssuance, "sign", err)
	}

	log.Info("conversion complete", "expires_at", link.ExpiresAt)
	return &Result{ObjectName: name, Link: link}, nil
}
