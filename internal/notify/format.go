package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/turnos-backend/internal/calendar"
	"github.com/tbourn/turnos-backend/internal/domain"
)

var (
	dayNames   = [...]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"}
	monthNames = [...]string{"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio", "Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre"}
)

// FormatDate renders a YYYY-MM-DD date as e.g. "Lunes 10 de Marzo". Values
// that do not parse are returned unchanged.
func FormatDate(date string) string {
	d, err := time.Parse(calendar.DateLayout, date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s %d de %s", dayNames[d.Weekday()], d.Day(), monthNames[d.Month()-1])
}

// WhatsAppAddress turns a stored contact into a Twilio WhatsApp address,
// adding the country prefix when it is missing.
func WhatsAppAddress(contact, prefix string) string {
	var b strings.Builder
	for _, r := range contact {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if prefix != "" && !strings.HasPrefix(digits, prefix) {
		digits = prefix + digits
	}
	return "whatsapp:+" + digits
}

// ClientMessage is the confirmation sent to the person who booked.
func ClientMessage(a domain.Appointment) string {
	return fmt.Sprintf(`🎨 *SY Studio* - Turno Confirmado

¡Hola %s!

Tu turno ha sido confirmado:
📅 Día: %s
🕐 Hora: %d:00 hs

Te esperamos! 💅

Si necesitás cancelar o reprogramar, avisanos por este número.`,
		a.Name, FormatDate(a.AppointmentDate), a.AppointmentHour)
}

// AdminMessage is the heads-up sent to the operator.
func AdminMessage(a domain.Appointment) string {
	return fmt.Sprintf(`🔔 *Nuevo Turno Reservado*

👤 Cliente: %s
📱 WhatsApp: %s
📅 Fecha: %s
🕐 Hora: %d:00 hs

ID: #%d`,
		a.Name, a.Contact, FormatDate(a.AppointmentDate), a.AppointmentHour, a.ID)
}
