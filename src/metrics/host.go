package metrics

import (
	"path/filepath"

	linuxproc "github.com/c9s/goprocinfo/linux"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// userHZ is the kernel's clock tick rate for /proc/stat counters.
const userHZ = 100

var (
	hostCPUDesc = prometheus.NewDesc(
		namespace+"_host_cpu_seconds_total",
		"Host CPU time by mode, read from /proc/stat.",
		[]string{"mode"}, nil,
	)
	hostMemTotalDesc = prometheus.NewDesc(
		namespace+"_host_memory_total_bytes",
		"Host memory size, read from /proc/meminfo.",
		nil, nil,
	)
	hostMemAvailableDesc = prometheus.NewDesc(
		namespace+"_host_memory_available_bytes",
		"Host memory available for new work, read from /proc/meminfo.",
		nil, nil,
	)
)

// HostCollector reports CPU and memory usage of the machine running the
// decoder. Joint models grow quickly, so memory headroom is worth watching.
type HostCollector struct {
	procDir string
}

// NewHostCollector reads from procDir, normally "/proc".
func NewHostCollector(procDir string) *HostCollector {
	return &HostCollector{procDir: procDir}
}

func (c *HostCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- hostCPUDesc
	ch <- hostMemTotalDesc
	ch <- hostMemAvailableDesc
}

func (c *HostCollector) Collect(ch chan<- prometheus.Metric) {
	c.collectCPU(ch)
	c.collectRAM(ch)
}

func (c *HostCollector) collectCPU(ch chan<- prometheus.Metric) {
	stat, err := linuxproc.ReadStat(filepath.Join(c.procDir, "stat"))
	if err != nil {
		log.WithFields(log.Fields{
			"ERROR": err,
		}).Warn("METRICS: FAILED TO READ /proc/stat")
		return
	}
	all := stat.CPUStatAll
	modes := map[string]uint64{
		"user":    all.User,
		"nice":    all.Nice,
		"system":  all.System,
		"idle":    all.Idle,
		"iowait":  all.IOWait,
		"irq":     all.IRQ,
		"softirq": all.SoftIRQ,
		"steal":   all.Steal,
	}
	for mode, ticks := range modes {
		ch <- prometheus.MustNewConstMetric(hostCPUDesc, prometheus.CounterValue, float64(ticks)/userHZ, mode)
	}
}

func (c *HostCollector) collectRAM(ch chan<- prometheus.Metric) {
	mem, err := linuxproc.ReadMemInfo(filepath.Join(c.procDir, "meminfo"))
	if err != nil {
		log.WithFields(log.Fields{
			"ERROR": err,
		}).Warn("METRICS: FAILED TO READ /proc/meminfo")
		return
	}
	ch <- prometheus.MustNewConstMetric(hostMemTotalDesc, prometheus.GaugeValue, float64(mem.MemTotal)*1024)
	ch <- prometheus.MustNewConstMetric(hostMemAvailableDesc, prometheus.GaugeValue, float64(mem.MemAvailable)*1024)
}
