package main

import (
	"errors"
	"strings"
)

type RephraseConfig struct {
	InPath      string
	OutPath     string
	Style       string
	Verifier    string
	ChunkSize   int
	Concurrency int
	Resume      bool
	DryRun      bool
}

func (c RephraseConfig) Validate(isDir bool) error {
	if c.InPath == "" {
		return errors.New("missing --in")
	}
	if isDir && c.OutPath == "" {
		return errors.New("missing --out (required for a directory input)")
	}
	if c.ChunkSize < 0 {
		return errors.New("chunk-size must be >= 0")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	return nil
}

func defaultRephraseConfig() RephraseConfig {
	return RephraseConfig{Concurrency: 4}
}

type PlanConfig struct {
	Topic        string
	Objective    string
	Audience     string
	Tone         string
	TargetLength int
	OutPath      string
}

func (c PlanConfig) Validate() error {
	if strings.TrimSpace(c.Topic) == "" {
		return errors.New("missing --topic")
	}
	if c.TargetLength <= 0 {
		return errors.New("target-length must be > 0")
	}
	return nil
}

func defaultPlanConfig() PlanConfig {
	return PlanConfig{TargetLength: 2000}
}

type GenerateConfig struct {
	PlanPath string
	Plan     PlanConfig
	OutDir   string
}

func (c GenerateConfig) Validate() error {
	if c.OutDir == "" {
		return errors.New("missing --out")
	}
	if c.PlanPath == "" {
		if err := c.Plan.Validate(); err != nil {
			return errors.New("need --plan or a valid --topic: " + err.Error())
		}
	}
	return nil
}

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{Plan: defaultPlanConfig()}
}
