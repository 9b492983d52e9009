package mqtt

import (
	"time"

	"meshgate/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// NewMQTTClient creates an MQTT client and connects it
func NewMQTTClient(broker, clientID, username, password string) (mqtt.Client, error) {
	log := utils.Logger("mqtt")
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetUsername(username).
		SetPassword(password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info().Str("broker", broker).Msg("connected")
		})
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(30*time.Second) && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}
