package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	trainingSubmitted   atomic.Int64
	trainingRejected    atomic.Int64
	webhooksAccepted    atomic.Int64
	webhooksRejected    atomic.Int64
	webhooksDuplicate   atomic.Int64
	creditsRefunded     atomic.Int64
	imagesGenerated     atomic.Int64
	generationsRejected atomic.Int64
)

func TrainingSubmitted()    { trainingSubmitted.Add(1) }
func TrainingRejected()     { trainingRejected.Add(1) }
func WebhookAccepted()      { webhooksAccepted.Add(1) }
func WebhookRejected()      { webhooksRejected.Add(1) }
func WebhookDuplicate()     { webhooksDuplicate.Add(1) }
func CreditRefunded()       { creditsRefunded.Add(1) }
func ImagesGenerated(n int) { imagesGenerated.Add(int64(n)) }
func GenerationRejected()   { generationsRejected.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	write := func(name, help string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n", name, value)
	}

	write("aivisio_training_submitted_total", "Training jobs accepted for submission.", trainingSubmitted.Load())
	write("aivisio_training_rejected_total", "Training submissions rejected before reaching the provider.", trainingRejected.Load())
	write("aivisio_webhooks_accepted_total", "Webhook deliveries that passed signature verification.", webhooksAccepted.Load())
	write("aivisio_webhooks_rejected_total", "Webhook deliveries rejected as unauthenticated.", webhooksRejected.Load())
	write("aivisio_webhooks_duplicate_total", "Webhook deliveries ignored as replays.", webhooksDuplicate.Load())
	write("aivisio_credits_refunded_total", "Training credits refunded on failed or canceled runs.", creditsRefunded.Load())
	write("aivisio_images_generated_total", "Images produced by the generation service.", imagesGenerated.Load())
	write("aivisio_generations_rejected_total", "Generation requests rejected for insufficient credits.", generationsRejected.Load())
}

func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WritePrometheus(w)
	})
}
