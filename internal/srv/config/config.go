package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jypelle/cedarhud/internal/tool"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const paramFilename = "param.yaml"
const stateFilename = "state.yaml"

type ServerConfig struct {
	ConfigDir      string
	DebugMode      bool
	SimulationMode bool

	*ServerParam
	*ServerState
}

func NewServerConfig(configDir string, debugMode bool, simulationMode bool) (*ServerConfig, error) {
	serverConfig := &ServerConfig{
		ConfigDir:      configDir,
		DebugMode:      debugMode,
		SimulationMode: simulationMode,
	}

	// Check Configuration folder
	exists, err := tool.IsFileExists(configDir)
	if err != nil {
		return nil, fmt.Errorf("unable to access config folder %s: %w", configDir, err)
	}
	if !exists {
		logrus.Printf("Creation of config folder: %s", configDir)
		if err = tool.EnsureDir(configDir); err != nil {
			return nil, fmt.Errorf("unable to create config folder: %w", err)
		}
	}

	// Open param file
	serverConfig.ServerParam = &ServerParam{}
	rawConfig, err := os.ReadFile(serverConfig.GetCompleteParamFilename())
	if err == nil {
		// Interpret param file on top of the defaults so that new keys get a value
		if err = yaml.Unmarshal(ParamDefaultFile, serverConfig.ServerParam); err != nil {
			return nil, fmt.Errorf("unable to interpret default param file: %w", err)
		}
		if err = yaml.Unmarshal(rawConfig, serverConfig.ServerParam); err != nil {
			return nil, fmt.Errorf("unable to interpret param file %s: %w", serverConfig.GetCompleteParamFilename(), err)
		}
	} else if os.IsNotExist(err) {
		// Create default param file
		logrus.Infof("Create default param file")
		if err = yaml.Unmarshal(ParamDefaultFile, serverConfig.ServerParam); err != nil {
			return nil, fmt.Errorf("unable to interpret default param file: %w", err)
		}
		if err = serverConfig.SaveParam(); err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("unable to read param file: %w", err)
	}

	if err = serverConfig.ServerParam.Validate(); err != nil {
		return nil, fmt.Errorf("invalid param file %s: %w", serverConfig.GetCompleteParamFilename(), err)
	}

	// Open state file
	serverConfig.ServerState = NewServerState(serverConfig.GetCompleteStateFilename())
	serverConfig.SetReadouts(serverConfig.Display.Readouts)

	return serverConfig, nil
}

func (sc *ServerConfig) GetCompleteParamFilename() string {
	return filepath.Join(sc.ConfigDir, paramFilename)
}

func (sc *ServerConfig) GetCompleteStateFilename() string {
	return filepath.Join(sc.ConfigDir, stateFilename)
}

func (sc *ServerConfig) GetCompleteKeyFilename() string {
	return filepath.Join(sc.ConfigDir, "key.pem")
}

func (sc *ServerConfig) GetCompleteCertFilename() string {
	return filepath.Join(sc.ConfigDir, "cert.pem")
}

func (sc *ServerConfig) SaveParam() error {
	logrus.Debugf("Save param file: %s", sc.GetCompleteParamFilename())
	rawConfig, err := yaml.Marshal(*sc.ServerParam)
	if err != nil {
		return fmt.Errorf("unable to serialize param file: %w", err)
	}
	if err = os.WriteFile(sc.GetCompleteParamFilename(), rawConfig, 0660); err != nil {
		return fmt.Errorf("unable to save param file: %w", err)
	}
	return nil
}
