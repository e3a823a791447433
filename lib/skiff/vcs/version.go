package vcs

import (
	"fmt"
	"regexp"

	"github.com/blang/semver"

	osutil "github.com/coveooss/skiff/lib/skiff/os"
)

// Oldest tool versions the drivers are exercised against. Older releases
// lack behavior the drivers depend on: git honors GIT_CONFIG_GLOBAL only
// from 2.32, and without it the user's global config leaks into every
// command.
var (
	minHgVersion  = semver.MustParse("4.9.0")
	minGitVersion = semver.MustParse("2.32.0")
)

var (
	hgBannerRegex  = regexp.MustCompile(`\(version ([0-9]+(?:\.[0-9]+)*)`)
	gitBannerRegex = regexp.MustCompile(`git version ([0-9]+(?:\.[0-9]+)*)`)
)

// HgVersion reports the version of the hg binary on PATH.
func HgVersion() (semver.Version, error) {
	res, err := osutil.Capture("", hgEnv, "hg", "--version", "--quiet").Await()
	if err != nil {
		return semver.Version{}, err
	}
	return parseBanner(hgBannerRegex, res.Stdout, "hg")
}

// GitVersion reports the version of the git binary on PATH.
func GitVersion() (semver.Version, error) {
	res, err := osutil.Capture("", gitEnv, "git", "version").Await()
	if err != nil {
		return semver.Version{}, err
	}
	return parseBanner(gitBannerRegex, res.Stdout, "git")
}

func parseBanner(re *regexp.Regexp, lines []string, tool string) (semver.Version, error) {
	if len(lines) == 0 {
		return semver.Version{}, fmt.Errorf("empty %s version banner", tool)
	}
	m := re.FindStringSubmatch(lines[0])
	if m == nil {
		return semver.Version{}, fmt.Errorf("unrecognized %s version banner %q", tool, lines[0])
	}
	v, err := semver.ParseTolerant(m[1])
	if err != nil {
		return semver.Version{}, fmt.Errorf("unparseable %s version %q: %w", tool, m[1], err)
	}
	return v, nil
}

// CheckHgVersion fails when the installed hg is older than the supported
// minimum.
func CheckHgVersion() error {
	v, err := HgVersion()
	if err != nil {
		return err
	}
	if v.LT(minHgVersion) {
		return fmt.Errorf("hg %s is older than the supported minimum %s", v, minHgVersion)
	}
	return nil
}

// CheckGitVersion fails when the installed git is older than the supported
// minimum.
func CheckGitVersion() error {
	v, err := GitVersion()
	if err != nil {
		return err
	}
	if v.LT(minGitVersion) {
		return fmt.Errorf("git %s is older than the supported minimum %s", v, minGitVersion)
	}
	return nil
}
