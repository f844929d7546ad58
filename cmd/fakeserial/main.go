// Command fakeserial impersonates a Serial V1 family IEEE 802.15.4 radio
// on a pseudo-terminal, translating the kernel driver's command stream to
// and from UDP datagrams.
//
// Grounded on original_source/fakeserial.c's main() (option parsing,
// fatal-on-setup-failure, then loop forever) and, for the CLI surface
// itself, src/kissutil.go's pflag usage in doismellburning/samoyed.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/doismellburning/ieee154bridge/internal/rflog"
	"github.com/doismellburning/ieee154bridge/internal/rfversion"
	"github.com/doismellburning/ieee154bridge/internal/shim"
)

const progName = "fakeserial"

func usage() {
	fmt.Fprintf(os.Stderr, "%s emulates a Serial V1 IEEE 802.15.4 radio on a pseudo-terminal,\n", progName)
	fmt.Fprintf(os.Stderr, "bridging it to a UDP peer (typically a udpbroker instance).\n\n")
	fmt.Fprintf(os.Stderr, "usage: %s -l <port> -d <host> -r <port> [options]\n\n", progName)
	pflag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nexample:\n  %s -l 9000 -d 127.0.0.1 -r 9001 -n /tmp/fakeserial0\n", progName)
}

func main() {
	var (
		localPort  = pflag.IntP("udp-local-port", "l", 0, "local UDP port to bind")
		destHost   = pflag.StringP("udp-dest", "d", "", "remote UDP destination host")
		destPort   = pflag.IntP("udp-remote-port", "r", 0, "remote UDP destination port")
		baud       = pflag.IntP("baudrate", "b", 921600, "PTY baud rate (115200 or 921600)")
		devicePath = pflag.StringP("device-name", "n", "fakeserial0", "path to publish the pseudo-terminal symlink at")
		verbose    = pflag.Bool("verbose", false, "enable debug logging")
		version    = pflag.BoolP("version", "v", false, "print version and exit")
		help       = pflag.BoolP("help", "h", false, "print this help message and exit")
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

	if *localPort == 0 || *destHost == "" || *destPort == 0 {
		fmt.Fprintln(os.Stderr, "error: -l, -d, and -r are all required")
		usage()
		os.Exit(1)
	}

	cfg := shim.Config{
		DevicePath:    *devicePath,
		BaudRate:      *baud,
		LocalUDPPort:  *localPort,
		RemoteHost:    *destHost,
		RemoteUDPPort: *destPort,
	}

	s, err := shim.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("startup failed", "err", err)
	}
	defer s.Close()

	log.Info("fakeserial ready", "device", *devicePath, "baud", *baud, "udp_local", *localPort, "udp_remote", fmt.Sprintf("%s:%d", *destHost, *destPort))

	if err := s.Run(); err != nil {
		log.Fatal("run loop exited", "err", err)
	}
}
