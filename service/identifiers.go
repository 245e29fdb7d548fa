package service

// Identifiers are the names shared between the control surface and the lifecycle collaborator.
// They are passed explicitly at construction.
type Identifiers struct {
	ChannelID      string
	ChannelName    string
	NotificationID int

	// ActionStart and ActionStop name the requests accepted by Run.
	ActionStart string
	ActionStop  string

	// ExtraVolume names the volume parameter of a start request.
	ExtraVolume string

	Title string
	Text  string
}

// DefaultIdentifiers returns the identifiers used by the nois application.
func DefaultIdentifiers() Identifiers {
	return Identifiers{
		ChannelID:      "NoisGeneratorChannel",
		ChannelName:    "Noise Generator",
		NotificationID: 1,
		ActionStart:    "com.example.nois.START",
		ActionStop:     "com.example.nois.STOP",
		ExtraVolume:    "volume",
		Title:          "Nois",
		Text:           "Noise is playing",
	}
}

// Notification is the ongoing indicator shown while noise plays.
type Notification struct {
	ID          int
	Channel     string
	ChannelName string
	Title       string
	Text        string
	StopAction  string
}

func (ids Identifiers) notification() Notification {
	return Notification{
		ID:          ids.NotificationID,
		Channel:     ids.ChannelID,
		ChannelName: ids.ChannelName,
		Title:       ids.Title,
		Text:        ids.Text,
		StopAction:  ids.ActionStop,
	}
}
