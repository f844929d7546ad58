// Command udpbroker is a minimalist UDP reflector: every peer that sends
// it a datagram is registered, and every subsequent datagram is forwarded
// to every other registered peer. Optionally journals every received
// datagram to a pcap capture file.
//
// Grounded on original_source/udp-broker.c's main() (bind, then loop
// forever servicing one socket) and src/kissutil.go's pflag usage (in
// doismellburning/samoyed) for the CLI surface.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/doismellburning/ieee154bridge/internal/pcap"
	"github.com/doismellburning/ieee154bridge/internal/reflector"
	"github.com/doismellburning/ieee154bridge/internal/rflog"
	"github.com/doismellburning/ieee154bridge/internal/rfversion"
)

const progName = "udpbroker"

func usage() {
	fmt.Fprintf(os.Stderr, "%s is a minimalist UDP broker: the first datagram from a peer\n", progName)
	fmt.Fprintf(os.Stderr, "registers it, and every datagram received is forwarded to every\n")
	fmt.Fprintf(os.Stderr, "other registered peer.\n\n")
	fmt.Fprintf(os.Stderr, "usage: %s -l <port> [-w <capture.pcap>]\n\n", progName)
	pflag.PrintDefaults()
}

func main() {
	var (
		localPort   = pflag.IntP("local-port", "l", 0, "local UDP port to bind")
		captureFile = pflag.StringP("write-file", "w", "", "write a pcap capture of every received datagram to this path")
		verbose     = pflag.Bool("verbose", false, "enable debug logging")
		version     = pflag.BoolP("version", "v", false, "print version and exit")
		help        = pflag.BoolP("help", "h", false, "print this help message and exit")
	)
	pflag.Usage = usage
	pflag.Parse()

	if *help {
		usage()
		os.Exit(0)
	}
	if *version {
		rfversion.Print(progName, *verbose)
		os.Exit(0)
	}

	rflog.SetVerbose(*verbose)
	log := rflog.For(progName)

	if *localPort == 0 {
		fmt.Fprintln(os.Stderr, "error: -l is required")
		usage()
		os.Exit(1)
	}

	conn, err := bindWildcard(*localPort)
	if err != nil {
		log.Fatal("bind failed", "err", err)
	}
	defer conn.Close()

	var opts []reflector.Option
	opts = append(opts, reflector.WithLogger(log))

	if *captureFile != "" {
		f, err := os.Create(*captureFile)
		if err != nil {
			log.Fatal("could not create capture file", "path", *captureFile, "err", err)
		}
		defer f.Close()

		writer, err := pcap.Create(f)
		if err != nil {
			log.Fatal("could not write pcap header", "err", err)
		}
		opts = append(opts, reflector.WithCapture(writer, wallClock))
		log.Info("capturing to", "path", *captureFile)
	}

	log.Info("udpbroker ready", "port", *localPort)

	broker := reflector.New(conn, opts...)
	if err := broker.Serve(); err != nil {
		log.Fatal("serve loop exited", "err", err)
	}
}

func wallClock() (uint32, uint32) {
	now := time.Now()
	return uint32(now.Unix()), uint32(now.Nanosecond() / 1000)
}

// bindWildcard opens a UDP socket on the wildcard address at port,
// preferring IPv6 (which also accepts IPv4 on most platforms), matching
// udp-broker.c's ipv6_server_setup()'s AF_UNSPEC/AI_PASSIVE resolution
// that tries each candidate in turn.
func bindWildcard(port int) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolving wildcard address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding port %d: %w", port, err)
	}
	return conn, nil
}
