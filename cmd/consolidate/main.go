// consolidate merges, deletes, and reclassifies tags in an existing
// statistics file. Runs are previews by default; pass --apply to commit.
package main

import (
	"flag"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/pixmeta/pixmeta/pkg/pixmeta"
)

var (
	statsFile        = flag.String("stats", "pixmeta_statistics.json", "statistics file to consolidate")
	rulesFile        = flag.String("rules", "consolidation_rules.json", "consolidation rule file")
	blacklistFile    = flag.String("blacklist", "tag_blacklists.json", "tag blacklist file")
	apply            = flag.Bool("apply", false, "apply changes (default is a dry-run preview)")
	fixMisclassified = flag.Bool("fix-misclassified", false, "move negative-quality tags out of the positive counters")
	exportTo         = flag.String("export", "", "write rules+blacklists to this file and exit")
	importFrom       = flag.String("import", "", "read rules+blacklists from this file instead of --rules/--blacklist")
	configPath       = flag.String("config", "", "optional YAML config (extra markers, file locations)")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	c := pixmeta.DefaultConfig()
	if *configPath != "" {
		var err error
		if c, err = pixmeta.LoadConfig(*configPath); err != nil {
			klog.Exitf("config failed: %v", err)
		}
	}

	rs, bl, err := loadRules()
	if err != nil {
		klog.Exitf("load rules failed: %v", err)
	}

	if *exportTo != "" {
		if err := pixmeta.ExportRules(*exportTo, rs, bl); err != nil {
			klog.Exitf("export failed: %v", err)
		}
		klog.Infof("exported %d rules to %s", rs.Len(), *exportTo)
		return
	}

	if rs.Len() == 0 && bl.Empty() && !*fixMisclassified {
		klog.Exitf("nothing to do: no rules, no blacklist, and --fix-misclassified not set")
	}

	store := pixmeta.NewStore()
	if err := store.Load(*statsFile); err != nil {
		klog.Exitf("load statistics failed: %v", err)
	}

	opts := pixmeta.ConsolidateOptions{
		FixMisclassified: *fixMisclassified,
		ExtraMarkers:     c.ExtraMarkers,
	}

	if !*apply {
		report := store.PreviewConsolidation(rs, bl, opts)
		fmt.Println(report)
		if !report.Empty() {
			fmt.Println("\npreview only; re-run with --apply to commit")
		}
		return
	}

	report := store.ApplyConsolidation(rs, bl, opts)
	fmt.Println(report)
	if report.Empty() {
		return
	}
	if err := store.Persist(*statsFile); err != nil {
		klog.Exitf("persist failed: %v", err)
	}
	klog.Infof("updated %s", *statsFile)
}

func loadRules() (*pixmeta.RuleSet, *pixmeta.Blacklist, error) {
	if *importFrom != "" {
		return pixmeta.ImportRules(*importFrom)
	}

	rs, err := pixmeta.LoadRules(*rulesFile)
	if err != nil {
		return nil, nil, err
	}
	bl, err := pixmeta.LoadBlacklist(*blacklistFile)
	if err != nil {
		return nil, nil, err
	}
	return rs, bl, nil
}
