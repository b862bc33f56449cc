// README: Push notifications to drivers through Firebase Cloud Messaging.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"firebase.google.com/go/v4/messaging"

	"kamuit/internal/modules/ride"
)

// Sender is the subset of *messaging.Client used here.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMNotifier struct {
	client Sender
	logger *slog.Logger
}

func NewFCMNotifier(client Sender, logger *slog.Logger) *FCMNotifier {
	return &FCMNotifier{client: client, logger: logger}
}

// NotifyDriverAssigned sends a data message about a newly assigned ride.
// The deviceToken must be resolved by the caller.
func (n *FCMNotifier) NotifyDriverAssigned(ctx context.Context, deviceToken string, r ride.Ride) error {
	if deviceToken == "" {
		return fmt.Errorf("empty device token for ride %s", r.ID)
	}
	msg := AssignmentMessage(deviceToken, r)
	messageID, err := n.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM for ride %s: %w", r.ID, err)
	}
	n.logger.Info("FCM sent", "ride_id", r.ID, "message_id", messageID)
	return nil
}

func AssignmentMessage(deviceToken string, r ride.Ride) *messaging.Message {
	fare := float64(r.FareEstimate.Amount) / 100
	return &messaging.Message{
		Token: deviceToken,
		Data: map[string]string{
			"type":            "ride_assigned",
			"ride_id":         string(r.ID),
			"pickup_lat":      strconv.FormatFloat(r.Pickup.Lat, 'f', 6, 64),
			"pickup_lng":      strconv.FormatFloat(r.Pickup.Lng, 'f', 6, 64),
			"pickup_address":  r.Pickup.Address,
			"dropoff_lat":     strconv.FormatFloat(r.Dropoff.Lat, 'f', 6, 64),
			"dropoff_lng":     strconv.FormatFloat(r.Dropoff.Lng, 'f', 6, 64),
			"dropoff_address": r.Dropoff.Address,
			"fare_estimate":   strconv.FormatInt(r.FareEstimate.Amount, 10),
			"currency":        r.FareEstimate.Currency,
		},
		Notification: &messaging.Notification{
			Title: "New ride assigned",
			Body:  fmt.Sprintf("Pickup at %s, estimated fare %.2f %s", pickupLabel(r), fare, r.FareEstimate.Currency),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}

func pickupLabel(r ride.Ride) string {
	if r.Pickup.Address != "" {
		return r.Pickup.Address
	}
	return strconv.FormatFloat(r.Pickup.Lat, 'f', 5, 64) + "," + strconv.FormatFloat(r.Pickup.Lng, 'f', 5, 64)
}
