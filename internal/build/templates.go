package build

import (
	"bytes"
	"fmt"
	"text/template"
)

// Prefix is the virtual path the archive is mounted under; generated code
// references its files as \tab\<name>.
const Prefix = "tab"

const (
	configFile    = "config.cpp"
	bootstrapFile = "bootstrap.sqf"
	benchFile     = "bench.sqf"
)

const configCpp = `class CfgPatches {
    class TAB {
        units[] = {};
        weapons[] = {};
        requiredVersion = 1.0;
        requiredAddons[] = {};
    };
};
class CfgFunctions {
    class TAB {
        class Bench {
            class Bootstrap {
                file = "\tab\bootstrap.sqf";
                preStart = 1;
            };
        };
    };
};
`

var executeBootstrap = template.Must(template.New("execute").Parse(
	`diag_log "arma-bench: job {{.ID}}";
"tab" callExtension ["timeout", ["{{.ID}}", {{.Timeout}}]];
private _code = compile preprocessFileLineNumbers "\tab\` + benchFile + `";
private _out = diag_codePerformance [_code];
private _ret = call _code;
"tab" callExtension ["execute", ["{{.ID}}", _out, _ret]];
"tab" callExtension ["die", []];
`))

var compareBootstrap = template.Must(template.New("compare").Parse(
	`diag_log "arma-bench: job {{.ID}}";
"tab" callExtension ["timeout", ["{{.ID}}", {{.Timeout}}]];
private _out = [];
{
    _x params ["_id", "_path"];
    private _code = compileScript [_path];
    private _ret = [_id];
    _ret pushBack (diag_codePerformance [_code]);
    _ret pushBack (call _code);
    _out pushBack _ret;
} forEach [{{range $i, $it := .Items}}{{if $i}}, {{end}}["{{$it.ID}}", "\tab\{{$it.File}}"]{{end}}];
"tab" callExtension ["compare", ["{{.ID}}", _out]];
"tab" callExtension ["die", []];
`))

type compareItem struct {
	ID   uint16
	File string
}

type bootstrapData struct {
	ID      string
	Timeout int
	Items   []compareItem
}

func render(t *template.Template, data bootstrapData) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering %s bootstrap: %w", t.Name(), err)
	}
	return buf.Bytes(), nil
}

// itemFile names a compare item inside the archive.
func itemFile(id uint16, sqfc bool) string {
	if sqfc {
		return fmt.Sprintf("%d.sqfc", id)
	}
	return fmt.Sprintf("%d.sqf", id)
}
