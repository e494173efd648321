package capture

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yl5006/sitl-gazebo/internal/transport"
)

func readPackets(t *testing.T, data []byte) []gopacket.Packet {
	t.Helper()
	r, err := pcapgo.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	var out []gopacket.Packet
	for {
		frame, _, err := r.ReadPacketData()
		if err != nil {
			break
		}
		out = append(out, gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default))
	}
	return out
}

func TestObserve_Directions(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, nil)
	require.NoError(t, err)

	local := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 14560}
	remote := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 41000}

	w.Observe(transport.Outbound, local, remote, []byte{0xfd, 0x01})
	w.Observe(transport.Inbound, local, remote, []byte{0xfd, 0x02})
	require.NoError(t, w.Close())
	assert.Equal(t, uint64(2), w.Written())

	pkts := readPackets(t, buf.Bytes())
	require.Len(t, pkts, 2)

	out := pkts[0].Layer(layers.LayerTypeUDP).(*layers.UDP)
	assert.Equal(t, layers.UDPPort(14560), out.SrcPort)
	assert.Equal(t, layers.UDPPort(41000), out.DstPort)
	assert.Equal(t, []byte{0xfd, 0x01}, out.Payload)
	require.NotNil(t, pkts[0].Layer(layers.LayerTypeIPv4))

	in := pkts[1].Layer(layers.LayerTypeUDP).(*layers.UDP)
	assert.Equal(t, layers.UDPPort(41000), in.SrcPort)
	assert.Equal(t, layers.UDPPort(14560), in.DstPort)
	assert.Equal(t, []byte{0xfd, 0x02}, in.Payload)
}

func TestObserve_IPv6AndSerial(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, nil)
	require.NoError(t, err)

	v6 := &net.UDPAddr{IP: net.IPv6loopback, Port: 14560}
	w.Observe(transport.Outbound, v6, &net.UDPAddr{IP: net.IPv6loopback, Port: 14580}, []byte{1})
	// serial endpoints have no IP, both ends fall back to loopback
	w.Observe(transport.Outbound, nil, nil, []byte{2})

	pkts := readPackets(t, buf.Bytes())
	require.Len(t, pkts, 2)
	assert.NotNil(t, pkts[0].Layer(layers.LayerTypeIPv6))
	assert.NotNil(t, pkts[1].Layer(layers.LayerTypeIPv4))
}

func TestObserve_AfterClose(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w.Observe(transport.Outbound, nil, nil, []byte{1})
	assert.Zero(t, w.Written())
	assert.Empty(t, readPackets(t, buf.Bytes()))
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.pcap")
	w, err := Create(path, nil)
	require.NoError(t, err)
	w.Observe(transport.Outbound, nil, nil, []byte{0xfd})
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, readPackets(t, data), 1)
}
