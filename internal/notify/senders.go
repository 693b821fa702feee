package notify

import "github.com/tbourn/turnos-backend/internal/config"

// SendersFromConfig enables each sender whose settings are present. The
// order is client confirmation, admin notice, queue, stream.
func SendersFromConfig(cfg config.NotifyConfig) []Sender {
	var out []Sender
	if cfg.WhatsAppEnabled() {
		tc := NewTwilioClient(cfg)
		out = append(out, &ClientConfirmation{Client: tc, CountryPrefix: cfg.WhatsAppCountryCode})
		if cfg.AdminWhatsAppTo != "" {
			out = append(out, &AdminNotification{Client: tc, To: cfg.AdminWhatsAppTo})
		}
	}
	if cfg.RabbitMQURL != "" {
		out = append(out, NewAMQPPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue))
	}
	if len(cfg.KafkaBrokers) > 0 {
		out = append(out, NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	return out
}
