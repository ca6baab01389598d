package main

import "fmt"

const helpString = `Decode SSL/TLS/DTLS wire-format records from a capture

Usage: tlsdump [OPTION]... [FILE]

Reads FILE (or stdin if omitted). Input may be raw bytes or a hex dump
(one record or datagram per line).

Options:
  -d, --dtls           Decode as DTLS datagrams instead of stream TLS
  -V, --version=NAME   Expected protocol version (default: TLSv1.2)
  -w, --watch=ADDR     Serve the decoded stream live over a websocket
  -h, --help           Print this help message and exit

Please report bugs to: aloha@lanikailabs.com`

func help() {
	fmt.Println(helpString)
}
