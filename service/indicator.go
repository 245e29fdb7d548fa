package service

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Indicator shows an ongoing notification with a stop action while noise plays.
type Indicator interface {
	Show(n Notification) error
	Hide() error
}

// LogIndicator reports the notification through a logger.
type LogIndicator struct {
	Log logrus.FieldLogger

	mu      sync.Mutex
	showing bool
}

func (li *LogIndicator) Show(n Notification) error {
	li.mu.Lock()
	defer li.mu.Unlock()
	if li.showing {
		return nil
	}
	li.showing = true
	li.Log.WithFields(logrus.Fields{
		"id":      n.ID,
		"channel": n.Channel,
		"name":    n.ChannelName,
		"stop":    n.StopAction,
	}).Infof("%s: %s", n.Title, n.Text)
	return nil
}

func (li *LogIndicator) Hide() error {
	li.mu.Lock()
	defer li.mu.Unlock()
	if !li.showing {
		return nil
	}
	li.showing = false
	li.Log.Info("notification removed")
	return nil
}
