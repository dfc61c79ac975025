package output

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/norasector/samedec/pkg/receiver/alert"
	"github.com/norasector/samedec/pkg/receiver/config"
)

// UDPOutput sends each alert as a length-prefixed protobuf Struct datagram.
type UDPOutput struct {
	dests    []config.OutputDestination
	recvChan chan *alert.Alert
	metrics  api.WriteAPI
}

func NewUDPOutput(dests []config.OutputDestination, metrics api.WriteAPI) *UDPOutput {
	return &UDPOutput{
		dests:    dests,
		recvChan: make(chan *alert.Alert, receiveChannels),
		metrics:  metrics,
	}
}

func (s *UDPOutput) Receive() chan<- *alert.Alert {
	return s.recvChan
}

// Encode frames an alert as a little endian uint16 length followed by the
// marshaled structpb.Struct of its fields.
func Encode(a *alert.Alert) ([]byte, error) {
	pb, err := structpb.NewStruct(a.Fields())
	if err != nil {
		return nil, fmt.Errorf("building struct: %w", err)
	}
	encoded, err := proto.Marshal(pb)
	if err != nil {
		return nil, fmt.Errorf("marshaling protobuf: %w", err)
	}
	if len(encoded) > 0xffff {
		return nil, fmt.Errorf("encoded alert too large: %d bytes", len(encoded))
	}

	var msgBuf bytes.Buffer
	if err := binary.Write(&msgBuf, binary.LittleEndian, uint16(len(encoded))); err != nil {
		return nil, fmt.Errorf("encoding header size: %w", err)
	}
	msgBuf.Write(encoded)
	return msgBuf.Bytes(), nil
}

// Decode reverses Encode.
func Decode(datagram []byte) (*structpb.Struct, error) {
	if len(datagram) < 2 {
		return nil, fmt.Errorf("datagram too short: %d bytes", len(datagram))
	}
	n := int(binary.LittleEndian.Uint16(datagram))
	if len(datagram)-2 < n {
		return nil, fmt.Errorf("datagram truncated: want %d bytes, have %d", n, len(datagram)-2)
	}
	var pb structpb.Struct
	if err := proto.Unmarshal(datagram[2:2+n], &pb); err != nil {
		return nil, err
	}
	return &pb, nil
}

func (s *UDPOutput) Start(ctx context.Context) error {
	destAddrs := make([]*net.UDPAddr, 0, len(s.dests))
	for _, dest := range s.dests {
		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return err
		}
		if len(ips) == 0 {
			return fmt.Errorf("no IPs returned for %s", dest.Host)
		}

		destAddr := &net.UDPAddr{IP: ips[0], Port: dest.Port}
		destAddrs = append(destAddrs, destAddr)
		log.Info().IPAddr("dest_ip", destAddr.IP).Int("port", dest.Port).Msg("udp output starting")
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	return drain(ctx, s.recvChan, func(a *alert.Alert) error {
		msg, err := Encode(a)
		if err != nil {
			log.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("error encoding alert")
			return nil
		}

		sent, dropped := 0, 0
		for _, destAddr := range destAddrs {
			if _, err := conn.WriteToUDP(msg, destAddr); err != nil {
				log.Error().Err(err).Str("dest", destAddr.String()).Msg("error writing")
				dropped++
				continue
			}
			sent++
		}

		go s.metrics.WritePoint(influxdb2.NewPoint("udp.sent_alert",
			map[string]string{
				"channel": a.Channel,
			},
			map[string]interface{}{
				"encoded_length": len(msg),
				"sent":           sent,
				"dropped":        dropped,
			}, time.Now()))
		return nil
	})
}
