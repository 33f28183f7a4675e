package dispatchd

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig() should validate, got %v", err)
	}
}

func TestValidateRejectsMismatchedSLO(t *testing.T) {
	c := DefaultConfig()
	c.SLO = c.SLO[:len(c.SLO)-1]
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for mismatched SLO length")
	}
}

func TestValidateRejectsMismatchedQueueSettings(t *testing.T) {
	c := DefaultConfig()
	c.QueueSettings = c.QueueSettings[:len(c.QueueSettings)-1]
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for mismatched QueueSettings length")
	}
}

func TestValidateRejectsBadNumPorts(t *testing.T) {
	for _, n := range []int{0, -1, MaxPorts + 1} {
		c := DefaultConfig()
		c.NumPorts = n
		if err := c.Validate(); err == nil {
			t.Errorf("expected error for NumPorts=%d", n)
		}
	}
}

func TestValidateRejectsNonPositiveWorkersOrBatch(t *testing.T) {
	c := DefaultConfig()
	c.NumWorkers = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for NumWorkers=0")
	}

	c = DefaultConfig()
	c.Batch = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for Batch=0")
	}
}

func TestValidateErrorIsInitFailure(t *testing.T) {
	c := DefaultConfig()
	c.NumWorkers = 0
	err := c.Validate()
	if !IsCode(err, ErrInitFailure) {
		t.Errorf("expected ErrInitFailure, got %v", err)
	}
}
