package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mindline/platform/internal/patients"
	"github.com/mindline/platform/pkg/logging"
)

// EmergencyNotifier alerts a patient's emergency contact. Callers treat the
// channel as fire-and-forget: failures are logged and never propagated into
// the escalation path.
type EmergencyNotifier interface {
	NotifyEmergencyContact(ctx context.Context, patient *patients.Patient, message string) error
}

// WhatsAppNotifier sends the alert as a WhatsApp message through the Twilio
// messages API.
type WhatsAppNotifier struct {
	accountSID    string
	authToken     string
	from          string
	countryPrefix string
	client        *http.Client
	logger        *logging.Logger
}

// NewWhatsAppNotifier creates a Twilio-backed notifier.
func NewWhatsAppNotifier(accountSID, authToken, from, countryPrefix string, logger *logging.Logger) *WhatsAppNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppNotifier{
		accountSID:    accountSID,
		authToken:     authToken,
		from:          from,
		countryPrefix: countryPrefix,
		client:        &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

// NotifyEmergencyContact sends the alert. A patient without an emergency
// number is a no-op.
func (n *WhatsAppNotifier) NotifyEmergencyContact(ctx context.Context, patient *patients.Patient, message string) error {
	if patient == nil || patient.EmergencyNumber == "" {
		return nil
	}
	if n.accountSID == "" || n.authToken == "" || n.from == "" {
		n.logger.Debug("notify: twilio not configured, skipping emergency contact")
		return nil
	}

	form := url.Values{}
	form.Set("From", "whatsapp:"+n.from)
	form.Set("To", "whatsapp:"+n.countryPrefix+patient.EmergencyNumber)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", n.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.SetBasicAuth(n.accountSID, n.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: twilio returned status %d", resp.StatusCode)
	}

	n.logger.Info("notify: emergency contact alerted", "patient_id", patient.ID)
	return nil
}

// StubNotifier logs instead of sending. Used in tests and when Twilio is
// not configured.
type StubNotifier struct {
	logger *logging.Logger
}

// NewStubNotifier creates a stub notifier.
func NewStubNotifier(logger *logging.Logger) *StubNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubNotifier{logger: logger}
}

// NotifyEmergencyContact logs but doesn't send.
func (n *StubNotifier) NotifyEmergencyContact(ctx context.Context, patient *patients.Patient, message string) error {
	if patient == nil || patient.EmergencyNumber == "" {
		return nil
	}
	n.logger.Info("stub notifier: would alert emergency contact", "patient_id", patient.ID)
	return nil
}

// Ensure interface compliance
var _ EmergencyNotifier = (*WhatsAppNotifier)(nil)
var _ EmergencyNotifier = (*StubNotifier)(nil)
