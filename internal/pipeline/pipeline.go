// Package pipeline runs one extraction request end to end: cache lookup,
// text extraction, the model call, result assembly and cache write.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/doc-extract/internal/cache"
	"github.com/sells-group/doc-extract/internal/document"
	"github.com/sells-group/doc-extract/internal/llm"
	"github.com/sells-group/doc-extract/internal/model"
)

// unreturnedRationale is set on schema fields the model left empty.
const unreturnedRationale = "field not returned by model"

// ResultCache stores finished results. Implementations swallow their own
// failures.
type ResultCache interface {
	Get(ctx context.Context, key string) (*model.ExtractionResult, bool)
	Set(ctx context.Context, key string, result *model.ExtractionResult)
}

// FieldExtractor resolves schema fields from layout text.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, label string, schema model.ExtractionSchema, layout string) llm.Extraction
}

// PostProcessor adjusts an assembled result before it is cached.
type PostProcessor func(result *model.ExtractionResult)

// PassThrough is the default PostProcessor; it leaves results unchanged.
func PassThrough(*model.ExtractionResult) {}

// RunOptions controls a single Run.
type RunOptions struct {
	UseCache bool
}

// Pipeline sequences the extraction stages.
type Pipeline struct {
	resolver    *document.Resolver
	extractor   document.Extractor
	fields      FieldExtractor
	cache       ResultCache
	postProcess PostProcessor

	// now allows test injection of time.
	now func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache enables result caching. A nil cache leaves caching off.
func WithCache(c ResultCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithPostProcessor replaces the pass-through post-processing step.
func WithPostProcessor(fn PostProcessor) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.postProcess = fn
		}
	}
}

// New creates a Pipeline.
func New(resolver *document.Resolver, extractor document.Extractor, fields FieldExtractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		resolver:    resolver,
		extractor:   extractor,
		fields:      fields,
		postProcess: PassThrough,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CacheEnabled reports whether a result cache is configured.
func (p *Pipeline) CacheEnabled() bool { return p.cache != nil }

// Run executes the pipeline for req. Document errors (PathError,
// DocumentError) and ValidationError are returned; cache and model failures
// never are.
func (p *Pipeline) Run(ctx context.Context, req model.ExtractionRequest, opts RunOptions) (*model.ExtractionResult, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	start := p.now()
	log := zap.L().With(zap.String("label", req.Label))

	data, source := req.PDFBytes, "upload"
	if len(data) == 0 {
		var err error
		data, source, err = p.resolver.Load(req.PDFPath)
		if err != nil {
			return nil, err
		}
	}

	pdfHash := document.HashPDFBytes(data)
	schemaHash := document.HashExtractionSchema(req.Schema)
	key := cache.Key(req.Label, pdfHash, schemaHash)
	useCache := opts.UseCache && p.cache != nil

	if useCache {
		if cached, ok := p.cache.Get(ctx, key); ok {
			cached.Meta.CacheHit = true
			cached.Meta.CacheKey = key
			cached.Meta.TimingsSeconds = model.Timings{Total: p.now().Sub(start).Seconds()}
			log.Info("pipeline: cache hit", zap.String("cache_key", key))
			return cached, nil
		}
	}

	extractStart := p.now()
	doc, err := p.extractor.Extract(ctx, data, source)
	if err != nil {
		log.Warn("pipeline: text extraction failed", zap.String("source", source), zap.Error(err))
		return nil, err
	}
	extractDur := p.now().Sub(extractStart)

	llmStart := p.now()
	ext := p.fields.ExtractFields(ctx, req.Label, req.Schema, doc.LayoutText)
	llmDur := p.now().Sub(llmStart)

	fields, trace := assemble(req.Schema, ext.Fields)

	result := &model.ExtractionResult{
		Label:  req.Label,
		Fields: fields,
		Meta: model.ExtractionMeta{
			TimingsSeconds: model.Timings{
				Extract: extractDur.Seconds(),
				LLM:     llmDur.Seconds(),
				Total:   p.now().Sub(start).Seconds(),
			},
			CacheKey:   key,
			PDFHash:    pdfHash,
			SchemaHash: schemaHash,
			Trace:      trace,
			DocMeta:    doc.Meta,
			Tokens:     ext.Usage,
			Model:      ext.Model,
			LLMError:   string(ext.Err),
		},
	}

	p.postProcess(result)

	if useCache {
		p.cache.Set(ctx, key, result)
	}

	log.Info("pipeline: extraction complete",
		zap.String("cache_key", key),
		zap.Int("resolved", len(trace.LLMResolved)),
		zap.Int("unresolved", len(trace.Unresolved)),
		zap.Float64("total_seconds", result.Meta.TimingsSeconds.Total),
	)
	return result, nil
}

// assemble orders results by schema and partitions the field names. A field
// the model omitted or left empty becomes unresolved.
func assemble(schema model.ExtractionSchema, returned model.FieldResults) (model.FieldResults, model.Trace) {
	fields := *model.NewOrdered[model.FieldResult](schema.Len())
	trace := model.Trace{LLMResolved: []string{}, Unresolved: []string{}}

	for name := range schema.All() {
		f, ok := returned.Get(name)
		switch {
		case !ok:
			f = model.Unresolved(unreturnedRationale, nil)
		case !f.Resolved():
			rationale := f.Rationale
			if rationale == "" {
				rationale = unreturnedRationale
			}
			f = model.Unresolved(rationale, f.Details)
		}

		fields.Set(name, f)
		if f.Source == model.SourceLLM {
			trace.LLMResolved = append(trace.LLMResolved, name)
		} else {
			trace.Unresolved = append(trace.Unresolved, name)
		}
	}
	return fields, trace
}
