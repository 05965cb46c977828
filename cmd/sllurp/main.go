// Command sllurp connects to one LLRP reader, negotiates its capabilities,
// starts inventory, and prints every tag report to stdout until interrupted or the
// configured duration elapses. Its flag surface mirrors sllurp's
// inventory.py example script.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/hanyangzhao/sllurp/internal/llrp"
)

var (
	version = "0.1.0"

	app = kingpin.New("sllurp", "A command-line LLRP inventory client.")

	host             = app.Arg("host", "Reader hostname or IP address.").Required().String()
	port             = app.Flag("port", "LLRP listening port.").Short('p').Default("5084").Int()
	inventoryTime    = app.Flag("time", "Seconds to inventory before stopping (0 runs until interrupted).").Short('t').Default("0").Float64()
	debug            = app.Flag("debug", "Enable debug logging.").Short('d').Default("false").Bool()
	reportEveryN     = app.Flag("report-every-n-tags", "Issue an RO_ACCESS_REPORT every N tags seen.").Short('n').Default("1").Int()
	antennas         = app.Flag("antennas", "Comma-separated antenna ports to enable.").Short('a').Default("1").String()
	txPower          = app.Flag("tx-power", "Transmit power table index (0 selects the highest available).").Short('X').Default("0").Int()
	modulation       = app.Flag("modulation", "M-series modulation to request (e.g. M4, M8).").Short('M').Default("M4").String()
	tari             = app.Flag("tari", "Tari value in nanoseconds (0 lets the reader choose).").Short('T').Default("0").Int()
	session          = app.Flag("session", "Gen2 session (0-3).").Short('s').Default("0").Int()
	tagPopulation    = app.Flag("tag-population", "Expected tag population size, for the reader's Q algorithm.").Short('P').Default("4").Int()
	reconnect        = app.Flag("reconnect", "Reconnect and resume inventory if the connection is lost.").Short('r').Default("false").Bool()
	logfile          = app.Flag("logfile", "Write logs to this file instead of stderr.").Short('l').String()
	configPath       = app.Flag("config", "Optional YAML config file; CLI flags take precedence over it.").String()
	disconnectOnDone = app.Flag("disconnect-when-done", "Disconnect once the inventory duration elapses, instead of idling connected.").Default("true").Bool()
)

func main() {
	app.Version(version)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := logrus.New()
	if *configPath != "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			log.WithError(err).Fatal("loading config")
		}
		applyFileConfig(cfg)
	}

	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}
	if *logfile != "" {
		f, err := os.OpenFile(*logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).Fatal("opening logfile")
		}
		defer f.Close()
		log.SetOutput(f)
	}

	antennaList, err := parseAntennas(*antennas)
	if err != nil {
		log.WithError(err).Fatal("parsing --antennas")
	}

	connCfg := llrp.ConnConfig{
		ROSpecID:           1,
		AccessSpecID:       1,
		Antennas:           antennaList,
		TxPowerIndex:       *txPower,
		Modulation:         *modulation,
		Tari:               *tari,
		DurationSec:        *inventoryTime,
		ReportEveryNTags:   *reportEveryN,
		Session:            *session,
		TagPopulation:      *tagPopulation,
		DisconnectWhenDone: *disconnectOnDone,
		AutoStart:          true,
	}

	engine := llrp.NewEngine(llrp.EngineConfig{Reconnect: *reconnect}, log)

	ropts := llrp.ReaderOptions{
		StateCallback: func(s llrp.State) {
			log.Debugf("state change -> %s", s)
		},
		TagReportCallback: func(t llrp.TagReport) {
			fmt.Printf("%s antenna=%d rssi=%d seen=%d\n", t.EPCHex(), t.AntennaID, t.PeakRSSI, t.TagSeenCount)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = engine.PoliteShutdown(shutdownCtx)
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", *host, *port)
	log.WithField("reader", addr).Info("connecting")
	_, errCh := engine.NewReader(ctx, addr, connCfg, ropts)

	if err := <-errCh; err != nil && ctx.Err() == nil {
		log.WithError(err).Fatal("reader connection ended")
	}
}

// parseAntennas splits a comma-separated antenna list ("1,2,3") into ints,
// the same shape sllurp's argparse(type=int, nargs='*') produces.
func parseAntennas(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		out = []int{1}
	}
	return out, nil
}

// applyFileConfig backfills any flag still at its documented default from
// the config file, so an explicit CLI flag always wins.
func applyFileConfig(cfg *fileConfig) {
	if cfg.Port != nil && *port == 5084 {
		*port = *cfg.Port
	}
	if cfg.Time != nil && *inventoryTime == 0 {
		*inventoryTime = *cfg.Time
	}
	if cfg.ReportEveryNTags != nil && *reportEveryN == 1 {
		*reportEveryN = *cfg.ReportEveryNTags
	}
	if cfg.Antennas != nil && *antennas == "1" {
		*antennas = *cfg.Antennas
	}
	if cfg.TxPower != nil && *txPower == 0 {
		*txPower = *cfg.TxPower
	}
	if cfg.Modulation != nil && *modulation == "M4" {
		*modulation = *cfg.Modulation
	}
	if cfg.Tari != nil && *tari == 0 {
		*tari = *cfg.Tari
	}
	if cfg.Session != nil && *session == 0 {
		*session = *cfg.Session
	}
	if cfg.TagPopulation != nil && *tagPopulation == 4 {
		*tagPopulation = *cfg.TagPopulation
	}
	if cfg.Reconnect != nil && !*reconnect {
		*reconnect = *cfg.Reconnect
	}
	if cfg.Debug != nil && !*debug {
		*debug = *cfg.Debug
	}
	if cfg.Logfile != nil && *logfile == "" {
		*logfile = *cfg.Logfile
	}
}
