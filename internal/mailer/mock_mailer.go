package mailer

import "sync"

// MockMailer records sent messages for assertions in tests.
type MockMailer struct {
	mu    sync.Mutex
	Sent  []MockMail
	Error error
}

func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

type MockMail struct {
	Recipient    string
	TemplateFile string
	Data         any
}

func (m *MockMailer) Send(recipient, templateFile string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Error != nil {
		return m.Error
	}

	m.Sent = append(m.Sent, MockMail{
		Recipient:    recipient,
		TemplateFile: templateFile,
		Data:         data,
	})

	return nil
}

func (m *MockMailer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Sent = nil
	m.Error = nil
}

func (m *MockMailer) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Sent)
}
