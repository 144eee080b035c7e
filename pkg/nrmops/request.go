package nrmops

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/aist-nrm/nrm/pkg/pathfinder"
	"github.com/aist-nrm/nrm/pkg/topo"
	"github.com/aist-nrm/nrm/pkg/util"
)

// requestOptionDefs is the -s/-d/-bi/-ero/-ch/-wdmsa/-p/-model/-data schema
// shared by pathfind and reserve (reserve.py's Reserve.options_def), -p
// defaulting to the logical CPU count (opebase.py's OPT_PROCESS default of
// os.cpu_count()).
var requestOptionDefs = []optionDef{
	boolOpt("bi"),
	oneOpt("s"),
	oneOpt("d"),
	anyOpt("ero"),
	anyOpt("ch"),
	boolOpt("wdmsa"),
	oneOptDefault("p", strconv.Itoa(runtime.NumCPU())),
	oneOpt("model"),
	oneOpt("data"),
}

// poolSize parses the -p option's value (always present via its default),
// falling back to 0 (orchestrator default) on a malformed override.
func poolSize(opts *optionValues) int {
	s, err := opts.requiredStr("p")
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

const requestUsage = `[-bi] -d <dst> [-ero <ero1 ero2 ero3..>] -s <src>
                [-ch <ch1 chX..chY chZ  ...>] [-wdmsa] [-p <num_threads>]
                [-model <model_file_key>] [-data <data_file_key>]
        -bi                            solve bidirectional route
        -d <dst>                       destination
        -ero <ero1 ero2 ero3 ...>      ERO port names
        -s <src>                       source
        -ch <ch1 chX..chY chZ  ...>    use channel names (chX..chY means {chX,chX+1, ..., chY})
        -wdmsa                         use one channel in round robin order
        -p                             number of concurrent threads
        -model <model_file_key>        key of GLPK model file name
        -data <data_file_key>          key of skeleton data file name`

// portLookup resolves a port name or returns a RequestError-shaped error
// (reserve.py's _make_port_lambda).
func portLookup(top *topo.Topology, name string) (*topo.Port, error) {
	p := top.PortByName(name)
	if p == nil {
		return nil, fmt.Errorf("invalid port name: %s", name)
	}
	return p, nil
}

// resolveEro resolves the -ero option's port names (reserve.py's _make_ero).
func resolveEro(top *topo.Topology, names []string) ([]*topo.Port, error) {
	if len(names) == 0 {
		return nil, nil
	}
	ero := make([]*topo.Port, 0, len(names))
	for _, name := range names {
		p := top.PortByName(name)
		if p == nil {
			return nil, fmt.Errorf("invalid port name in ERO: %s", name)
		}
		ero = append(ero, p)
	}
	return ero, nil
}

// channelTableForArgs infers the ChannelTable a -ch argument list operates
// within, from its first resolvable endpoint, so it can be handed to
// pathfinder.ResolveChannels (which is scoped to a single table).
func channelTableForArgs(top *topo.Topology, chArgs []string) (*topo.ChannelTable, error) {
	first := chArgs[0]
	if parts := strings.SplitN(first, "..", 2); len(parts) == 2 {
		first = parts[0]
	}
	ch := top.ChannelByFullNo(first)
	if ch == nil {
		return nil, fmt.Errorf("invalid channel name: %s", first)
	}
	table := top.ChannelTableByID(ch.ChannelTableID)
	if table == nil {
		return nil, fmt.Errorf("no channel table for channel: %s", first)
	}
	return table, nil
}

// resolveChannels implements the -ch/-wdmsa/default channel selection
// (reserve.py's _make_channels). Unlike -ch (scoped to the table its
// arguments name), the no-option and -wdmsa cases draw from every channel
// in the topology, matching topo.get_all_channel()'s topology-wide scope.
func resolveChannels(top *topo.Topology, chArgs []string, wdmsa bool) ([]*topo.Channel, error) {
	if len(chArgs) > 0 {
		table, err := channelTableForArgs(top, chArgs)
		if err != nil {
			return nil, err
		}
		return pathfinder.ResolveChannels(table, chArgs)
	}
	if wdmsa {
		all := append([]*topo.Channel(nil), top.AllChannels()...)
		sort.Slice(all, func(i, j int) bool { return util.NaturalLess(all[i].FullNo(), all[j].FullNo()) })
		ch := pathfinder.NextWDMSAChannel(all)
		if ch == nil {
			return nil, fmt.Errorf("there are no channels")
		}
		return []*topo.Channel{ch}, nil
	}
	return top.AllChannels(), nil
}

// isBiAvailable reports whether bidi can be requested on p (reserve.py's
// _is_bi_available).
func isBiAvailable(p *topo.Port) bool {
	return p.HasOpposite()
}

// buildRequest assembles a pathfinder.Request from parsed pathfind/reserve
// options, replicating _make_request's validation order: required src/dst,
// src != dst, then bidi availability on both endpoints checked up front so
// the error message names both ports before the orchestrator ever runs.
func buildRequest(top *topo.Topology, opts *optionValues) (*pathfinder.Request, error) {
	srcName, err := opts.requiredStr("s")
	if err != nil {
		return nil, err
	}
	dstName, err := opts.requiredStr("d")
	if err != nil {
		return nil, err
	}
	srcPort, err := portLookup(top, srcName)
	if err != nil {
		return nil, err
	}
	dstPort, err := portLookup(top, dstName)
	if err != nil {
		return nil, err
	}
	if srcPort.FullName() == dstPort.FullName() {
		return nil, fmt.Errorf("src == dst: %s", srcPort.FullName())
	}

	bidi := opts.boolVal("bi")
	ero, err := resolveEro(top, opts.list("ero"))
	if err != nil {
		return nil, err
	}
	channels, err := resolveChannels(top, opts.list("ch"), opts.boolVal("wdmsa"))
	if err != nil {
		return nil, err
	}
	if bidi && (!isBiAvailable(srcPort) || !isBiAvailable(dstPort)) {
		return nil, fmt.Errorf(
			"-bi option not supported for %s(%s,%s) and %s(%s,%s)",
			srcPort.FullName(), srcPort.SupportChannel, ioLabel(srcPort),
			dstPort.FullName(), dstPort.SupportChannel, ioLabel(dstPort),
		)
	}

	return &pathfinder.Request{
		Topo:     top,
		Src:      topo.PortChannel{Port: srcPort},
		Dst:      topo.PortChannel{Port: dstPort},
		Channels: channels,
		Mode:     pathfinder.ModePF,
		OrgERO:   ero,
		Bidi:     bidi,
	}, nil
}

// fileKey returns the -model/-data override when given, else def
// (reserve.py's _get_file_key; def is the configured default key rather
// than the original's topology filename — see DESIGN.md).
func fileKey(opt *string, def string) string {
	if opt != nil {
		return *opt
	}
	return def
}
