// Command replay re-sends telemetry datagrams from a pcap capture to a
// running dashboard. Useful for reproducing field captures offline; only
// UDP payloads matching the capture port are replayed.
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	pcapFile = flag.String("pcap", "", "Path to the pcap capture file (required)")
	target   = flag.String("target", "127.0.0.1:5000", "Target UDP address (host:port)")
	port     = flag.Int("port", 5000, "Capture-side UDP destination port to replay")
	pace     = flag.Bool("pace", true, "Preserve inter-packet timing from the capture")
)

func main() {
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("a pcap file is required (-pcap)")
	}

	f, err := os.Open(*pcapFile)
	if err != nil {
		log.Fatalf("failed to open pcap file: %v", err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		log.Fatalf("failed to read pcap header: %v", err)
	}

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	source := gopacket.NewPacketSource(reader, reader.LinkType())

	var (
		sent     int
		lastSeen time.Time
	)
	start := time.Now()

	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || int(udp.DstPort) != *port || len(udp.Payload) == 0 {
			continue
		}

		if *pace {
			ts := packet.Metadata().Timestamp
			if !lastSeen.IsZero() {
				if gap := ts.Sub(lastSeen); gap > 0 {
					time.Sleep(gap)
				}
			}
			lastSeen = ts
		}

		if _, err := conn.Write(udp.Payload); err != nil {
			log.Printf("failed to send payload: %v", err)
			continue
		}
		sent++
	}

	log.Printf("replay complete: %d datagrams in %v", sent, time.Since(start))
}
