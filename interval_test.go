package swim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAwarenessIntervalFiresAtScaledPeriod(t *testing.T) {
	notifier, iv := NewAwarenessInterval(10 * time.Millisecond)
	defer iv.Stop()

	select {
	case <-notifier.C():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("base-period tick never arrived")
	}

	d := iv.Update(3)
	assert.Equal(t, 30*time.Millisecond, d)

	select {
	case <-notifier.C():
	case <-time.After(300 * time.Millisecond):
		t.Fatal("scaled tick never arrived")
	}
}

func TestSyncIntervalBelowScaleUsesBase(t *testing.T) {
	_, iv := NewSyncInterval(10*time.Millisecond, 10)
	defer iv.Stop()

	assert.Equal(t, 10*time.Millisecond, iv.Update(5))
}

func TestSyncIntervalAboveScaleGrowsLogarithmically(t *testing.T) {
	_, iv := NewSyncInterval(10*time.Millisecond, 10)
	defer iv.Stop()

	d := iv.Update(40)
	assert.Greater(t, d, 10*time.Millisecond, "above-scale period must exceed the base")
}

func TestIntervalStopHaltsNotifications(t *testing.T) {
	notifier, iv := NewAwarenessInterval(10 * time.Millisecond)
	iv.Stop()

	// drain whatever already fired before Stop took effect
	select {
	case <-notifier.C():
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case <-notifier.C():
		t.Fatal("stopped interval kept firing")
	case <-time.After(60 * time.Millisecond):
	}
}
