// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: topology.go — socket/core/SMT-sibling discovery
//
// Purpose:
//   - Walks sysfs to build the socket/core/hardware-thread layout HOSK's
//     enclave placement needs: one enclave per physical core, its
//     application thread and helper thread pinned to that core's two SMT
//     siblings.
//   - Fails fast when SMT is unavailable or NUMA sysfs is missing, matching
//     the original tool's hard precondition — HOSK measures a specific
//     hardware topology, it does not degrade to a smaller one silently.
//
// Notes:
//   - No shelling out to lscpu: everything comes from
//     /sys/devices/system/node and /sys/devices/system/cpu, read directly.
// ─────────────────────────────────────────────────────────────────────────────

package numatopo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Core is one physical core: a pair of SMT sibling hardware thread IDs and
// the NUMA node it belongs to.
type Core struct {
	NodeID   int
	Siblings [2]int
}

// Layout is the full discovered machine topology.
type Layout struct {
	Nodes []int
	Cores []Core
}

// NumCores returns the number of physical cores discovered, one enclave
// per core.
func (l *Layout) NumCores() int { return len(l.Cores) }

// Discover walks sysfs and returns the machine's socket/core/SMT layout.
// requireSMT controls whether a core with fewer than two hardware threads
// is a fatal error (production default) or silently accepted (so tests
// can run the wiring logic on non-SMT hosts, see the coordinator's
// -smt-required flag).
func Discover(requireSMT bool) (*Layout, error) {
	nodes, err := discoverNodes()
	if err != nil {
		return nil, err
	}
	cpuToNode := make(map[int]int)
	for _, n := range nodes {
		cpus, err := readCPUList(filepath.Join(nodeSysPath(n), "cpulist"))
		if err != nil {
			return nil, fmt.Errorf("numatopo: reading cpulist for node %d: %w", n, err)
		}
		for _, cpu := range cpus {
			cpuToNode[cpu] = n
		}
	}

	seen := make(map[int]bool)
	var cores []Core
	cpuDirs, err := filepath.Glob("/sys/devices/system/cpu/cpu[0-9]*")
	if err != nil {
		return nil, fmt.Errorf("numatopo: globbing cpu dirs: %w", err)
	}
	sort.Strings(cpuDirs)
	for _, dir := range cpuDirs {
		base := filepath.Base(dir)
		cpuID, err := strconv.Atoi(strings.TrimPrefix(base, "cpu"))
		if err != nil {
			continue
		}
		if seen[cpuID] {
			continue
		}
		siblings, err := readCPUList(filepath.Join(dir, "topology", "thread_siblings_list"))
		if err != nil {
			return nil, fmt.Errorf("numatopo: reading thread_siblings_list for cpu%d: %w", cpuID, err)
		}
		if requireSMT && len(siblings) < 2 {
			return nil, fmt.Errorf("numatopo: cpu%d has no SMT sibling, HyperThreading required", cpuID)
		}
		var core Core
		core.NodeID = cpuToNode[cpuID]
		if len(siblings) >= 2 {
			core.Siblings = [2]int{siblings[0], siblings[1]}
		} else {
			core.Siblings = [2]int{cpuID, cpuID}
		}
		for _, s := range siblings {
			seen[s] = true
		}
		if !seen[cpuID] {
			seen[cpuID] = true
		}
		cores = append(cores, core)
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("numatopo: no CPUs discovered under /sys/devices/system/cpu")
	}
	return &Layout{Nodes: nodes, Cores: cores}, nil
}

func nodeSysPath(node int) string {
	return filepath.Join("/sys/devices/system/node", fmt.Sprintf("node%d", node))
}

func discoverNodes() ([]int, error) {
	const numaPath = "/sys/devices/system/node"
	entries, err := os.ReadDir(numaPath)
	if err != nil {
		return nil, fmt.Errorf("numatopo: NUMA sysfs unavailable: %w", err)
	}
	var nodes []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "node") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "node"))
		if err != nil {
			continue
		}
		nodes = append(nodes, id)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("numatopo: no NUMA nodes found under %s", numaPath)
	}
	sort.Ints(nodes)
	return nodes, nil
}

func readCPUList(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("empty file %s", path)
	}
	line := strings.TrimSpace(scanner.Text())
	return parseCPUList(line)
}

func parseCPUList(list string) ([]int, error) {
	var cpus []int
	if list == "" {
		return cpus, nil
	}
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			start, err := strconv.Atoi(bounds[0])
			if err != nil {
				return nil, err
			}
			end, err := strconv.Atoi(bounds[1])
			if err != nil {
				return nil, err
			}
			for i := start; i <= end; i++ {
				cpus = append(cpus, i)
			}
		} else {
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, err
			}
			cpus = append(cpus, v)
		}
	}
	return cpus, nil
}
