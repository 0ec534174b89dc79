package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/peymanslh/wanotifier/models"
)

var (
	eventOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wanotifier_event_outcomes_total",
		Help: "Inbound event pipeline outcomes by automation type",
	}, []string{"automation_type", "outcome"})

	campaignMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wanotifier_campaign_messages_total",
		Help: "Campaign contact send outcomes",
	}, []string{"outcome"})
)

func recordEventOutcome(t models.AutomationType, outcome string) {
	eventOutcomes.WithLabelValues(string(t), outcome).Inc()
}

func recordCampaignMessage(outcome string) {
	campaignMessages.WithLabelValues(outcome).Inc()
}
