package main

import (
	"flag"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

func waitFor(addr string, attempts int, timeout time.Duration) bool {
	for i := 1; i <= attempts; i++ {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err == nil {
			_ = conn.Close()
			log.WithField("addr", addr).Info("tcp connection available")
			return true
		}
		log.WithError(err).WithField("addr", addr).WithField("attempt", i).Info("connection not yet available")
		time.Sleep(time.Second)
	}
	return false
}

func main() {
	addrs := flag.String("addrs", "localhost:27017", "comma separated host:port list to wait for")
	attempts := flag.Int("attempts", 20, "connection attempts per address")
	timeout := flag.Duration("timeout", 10*time.Second, "timeout of a single connection attempt")
	flag.Parse()
	log.SetFormatter(&log.JSONFormatter{})

	for _, addr := range strings.Split(*addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if !waitFor(addr, *attempts, *timeout) {
			log.WithField("addr", addr).WithField("attempts", *attempts).Fatal("could not open tcp connection")
		}
	}
}
