package mqtt

// FakePublisher records published batches for test assertions.
type FakePublisher struct {
	// Batches contains all batches that were published.
	Batches []Batch

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the batch.
func (f *FakePublisher) Publish(batch Batch) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	f.Batches = append(f.Batches, batch)

	payload, err := FormatPayload(batch)
	if err != nil {
		return err
	}
	f.Payloads = append(f.Payloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded batches.
func (f *FakePublisher) Reset() {
	f.Batches = nil
	f.Payloads = nil
	f.PublishError = nil
	f.Closed = false
}
