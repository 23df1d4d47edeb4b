package delivery

import (
	"context"
	"path/filepath"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/media"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/metrics"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/sink"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/config"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"go.uber.org/fx"
)

// maxFilesPerMessage is the webhook attachment cap.
const maxFilesPerMessage = 10

// Preparer is the slice of the image pipeline delivery needs.
type Preparer interface {
	NewScope() *media.Scope
	Prepare(ctx context.Context, scope *media.Scope, urls []string, maxBytes int64) media.Result
}

// Report is what happened to one post.
type Report struct {
	Variant domain.Variant
	// Sent is the variant that actually went out after fallbacks.
	Sent      domain.Variant
	Primary   sink.Outcome
	Secondary *sink.Outcome
	// Attachment is the outcome of a send whose files were refused and
	// replaced by a send without them.
	Attachment *sink.Outcome
}

type Orchestrator struct {
	media    Preparer
	sink     sink.Sink
	maxBytes int64
	logger   logger.Logger
}

type Opts struct {
	fx.In
	Media  *media.Pipeline
	Sink   sink.Sink
	Config *config.Config
	Logger logger.Logger
}

func New(opts Opts) *Orchestrator {
	return NewOrchestrator(opts.Media, opts.Sink, opts.Config.AttachmentMaxBytes(), opts.Logger)
}

func NewOrchestrator(p Preparer, s sink.Sink, maxBytes int64, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		media:    p,
		sink:     s,
		maxBytes: maxBytes,
		logger:   log.WithComponent("Delivery"),
	}
}

// Deliver sends one rendered post. Image trouble, including a sink refusing the
// attachment, degrades to text once; nothing else is retried.
// Every asset created along the way is released before returning.
func (o *Orchestrator) Deliver(ctx context.Context, plan domain.RenderPlan, ep domain.Endpoint) Report {
	scope := o.media.NewScope()
	defer scope.Release()

	log := o.logger.With("account", ep.Name, "post_id", plan.PostID, "variant", plan.Variant.String())
	report := Report{Variant: plan.Variant, Sent: plan.Variant}

	switch plan.Variant {
	case domain.VariantSingleImage, domain.VariantMultiImage:
		res := o.prepare(ctx, scope, plan.ImageURLs)
		if res.Status != media.StatusOK {
			log.Warn("Images unusable, sending text only", "media", res.Status.String(),
				"downloaded", res.Downloaded, "requested", res.Sources)
			report.Sent = domain.VariantTextOnly
			report.Primary = o.send(ctx, plan.Variant, message(plan.Degraded(), ep, nil))
			break
		}
		if res.Downloaded < res.Sources {
			log.Info("Partial image set", "downloaded", res.Downloaded, "requested", res.Sources)
		}
		report.Primary = o.send(ctx, plan.Variant, message(plan, ep, res.Asset))
		if refused(report.Primary) {
			log.Warn("Image message not accepted, sending text only", "outcome", report.Primary.String())
			first := report.Primary
			report.Attachment = &first
			report.Sent = domain.VariantTextOnly
			report.Primary = o.send(ctx, plan.Variant, message(plan.Degraded(), ep, nil))
			break
		}

		if res.Sources > 1 && res.AnimatedSources > 0 {
			second := o.sendAnimated(ctx, plan, ep, res.Animated)
			report.Secondary = &second
			if !second.Delivered() {
				log.Warn("Animated follow-up not delivered", "outcome", second.String())
			}
		}

	case domain.VariantRepost:
		var attach *domain.Asset
		if plan.Quote != nil && len(plan.Quote.ImageURLs) > 0 {
			res := o.prepare(ctx, scope, plan.Quote.ImageURLs)
			if res.Status == media.StatusOK {
				attach = res.Asset
			} else {
				log.Warn("Quoted images unusable, sending without them", "media", res.Status.String())
			}
		}
		report.Primary = o.send(ctx, plan.Variant, message(plan, ep, attach))
		if attach != nil && refused(report.Primary) {
			log.Warn("Repost with quoted image not accepted, sending without it", "outcome", report.Primary.String())
			first := report.Primary
			report.Attachment = &first
			report.Primary = o.send(ctx, plan.Variant, message(plan, ep, nil))
		}

	default:
		report.Primary = o.send(ctx, plan.Variant, message(plan, ep, nil))
	}

	if !report.Primary.Delivered() {
		log.Error("Delivery failed", "outcome", report.Primary.String())
	}
	return report
}

// refused reports whether a send failed in a way a lighter payload may avoid.
func refused(out sink.Outcome) bool {
	return out.Status == sink.StatusRejected || out.Status == sink.StatusTransportError
}

func (o *Orchestrator) prepare(ctx context.Context, scope *media.Scope, urls []string) media.Result {
	res := o.media.Prepare(ctx, scope, urls, o.maxBytes)
	metrics.MediaPrepared.WithLabelValues(res.Status.String()).Inc()
	return res
}

func (o *Orchestrator) sendAnimated(ctx context.Context, plan domain.RenderPlan, ep domain.Endpoint, assets []*domain.Asset) sink.Outcome {
	if len(assets) > maxFilesPerMessage {
		assets = assets[:maxFilesPerMessage]
	}
	msg := sink.Message{
		Target:    ep.SinkURL,
		AvatarURL: plan.Envelope.AvatarURL,
	}
	for _, a := range assets {
		msg.Files = append(msg.Files, file(a))
	}
	// An empty message comes back as NoContent from the sink layer.
	return o.send(ctx, plan.Variant, msg)
}

func (o *Orchestrator) send(ctx context.Context, v domain.Variant, msg sink.Message) sink.Outcome {
	var out sink.Outcome
	if msg.Empty() {
		out = sink.NoContent()
	} else {
		out = o.sink.Send(ctx, msg)
	}
	metrics.Deliveries.WithLabelValues(v.String(), out.Status.String()).Inc()
	return out
}

func message(plan domain.RenderPlan, ep domain.Endpoint, attach *domain.Asset) sink.Message {
	env := plan.Envelope
	embed := &sink.Embed{
		Title:       env.Title,
		Description: env.Body,
		URL:         env.URL,
		Footer:      env.Footer,
		Timestamp:   env.Timestamp,
		Color:       env.Color,
	}
	if plan.Variant == domain.VariantRepost && plan.Quote != nil {
		text := plan.Quote.Text
		if text == "" {
			text = "-"
		}
		embed.Fields = append(embed.Fields, sink.Field{Name: plan.Quote.Author, Value: text})
	}

	msg := sink.Message{
		Target:    ep.SinkURL,
		AvatarURL: env.AvatarURL,
		Embed:     embed,
	}
	if attach != nil {
		f := file(attach)
		embed.ImageFile = f.Name
		msg.Files = []sink.File{f}
	}
	return msg
}

func file(a *domain.Asset) sink.File {
	return sink.File{
		Name:        filepath.Base(a.Path),
		ContentType: "image/" + a.Format,
		Path:        a.Path,
	}
}
