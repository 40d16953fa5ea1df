// Package mqtt bridges MS/TP interfaces to an MQTT broker.
package mqtt
