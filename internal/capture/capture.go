// Package capture writes the datagrams crossing the bridge endpoint to a
// pcap file. Each payload is framed as Ethernet/IP/UDP so standard tools
// (and their MAVLink dissectors) can read it.
package capture

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/yl5006/sitl-gazebo/internal/transport"
)

const snapLen = 65536

// placeholder used for endpoints without an IP address, e.g. serial links
var serialAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 14560}

var (
	localMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	remoteMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Writer is a transport.Observer that appends every datagram to a pcap
// stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	out    *pcapgo.Writer
	closer io.Closer
	clock  func() time.Time
	logger *slog.Logger

	written atomic.Uint64
	failed  atomic.Uint64
}

var _ transport.Observer = (*Writer)(nil)

// Create opens path and writes the pcap file header.
func Create(path string, logger *slog.Logger) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}
	w, err := NewWriter(f, logger)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter writes the pcap file header to out.
func NewWriter(out io.Writer, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pw := pcapgo.NewWriter(out)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("writing pcap header: %w", err)
	}
	return &Writer{out: pw, clock: time.Now, logger: logger}, nil
}

// Observe frames b and appends it. Errors are counted, never returned to
// the transport.
func (w *Writer) Observe(dir transport.Direction, local, remote net.Addr, b []byte) {
	src, dst := udpAddr(local), udpAddr(remote)
	srcMAC, dstMAC := localMAC, remoteMAC
	if dir == transport.Inbound {
		src, dst = dst, src
		srcMAC, dstMAC = dstMAC, srcMAC
	}

	frame, err := encode(srcMAC, dstMAC, src, dst, b)
	if err != nil {
		w.fail(err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return
	}
	err = w.out.WritePacket(gopacket.CaptureInfo{
		Timestamp:     w.clock(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}, frame)
	if err != nil {
		w.fail(err)
		return
	}
	w.written.Add(1)
}

func (w *Writer) fail(err error) {
	if w.failed.Add(1) == 1 {
		w.logger.Warn("Capture write failed", "error", err)
	}
}

// Written returns the number of packets captured.
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

// Failed returns the number of packets that could not be captured.
func (w *Writer) Failed() uint64 {
	return w.failed.Load()
}

// Close stops capturing and closes the underlying file, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.out = nil
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}

func udpAddr(a net.Addr) *net.UDPAddr {
	if u, ok := a.(*net.UDPAddr); ok && u != nil && u.IP != nil {
		return u
	}
	return serialAddr
}

func encode(srcMAC, dstMAC net.HardwareAddr, src, dst *net.UDPAddr, payload []byte) ([]byte, error) {
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC}

	var network gopacket.SerializableLayer
	src4, dst4 := src.IP.To4(), dst.IP.To4()
	if src4 != nil && dst4 != nil {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    src4,
			DstIP:    dst4,
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolUDP,
			SrcIP:      src.IP.To16(),
			DstIP:      dst.IP.To16(),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, network, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("framing datagram: %w", err)
	}
	return buf.Bytes(), nil
}
